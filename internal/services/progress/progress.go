package progress

import (
	"math"
	"strings"
	"time"

	"github.com/BearBump/FreightBox/internal/models"
)

const (
	// Автоматический прогресс по времени применяем, только если он ушёл дальше этого порога.
	DerivedThreshold = 5
	// Порог изменения координат, ниже которого пассивный просмотр ничего не пишет в БД.
	CoordsEpsilon = 0.01
)

// Пара по умолчанию (Киев -> Львов) для маршрутов с битыми координатами.
var (
	FallbackOrigin      = models.Point{Lat: 50.4501, Lng: 30.5234}
	FallbackDestination = models.Point{Lat: 49.8397, Lng: 24.0297}
)

func Clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// Endpoints возвращает координаты начала и конца маршрута, подставляя запасную пару для невалидных значений.
func Endpoints(r *models.Route) (models.Point, models.Point) {
	origin := r.Origin.Point()
	if !ValidPoint(origin) {
		origin = FallbackOrigin
	}
	dest := r.Destination.Point()
	if !ValidPoint(dest) {
		dest = FallbackDestination
	}
	return origin, dest
}

// ComputePosition: линейная интерполяция между началом и концом.
// На 0 и 100 возвращаются ровно концы маршрута, без погрешности float.
func ComputePosition(r *models.Route, percent int) models.Point {
	origin, dest := Endpoints(r)
	percent = Clamp(percent)
	switch percent {
	case 0:
		return origin
	case 100:
		return dest
	}
	f := float64(percent) / 100
	return models.Point{
		Lat: origin.Lat + (dest.Lat-origin.Lat)*f,
		Lng: origin.Lng + (dest.Lng-origin.Lng)*f,
	}
}

func DeriveTimeProgress(r *models.Route, now time.Time) (int, bool) {
	if r.Status != models.RouteStatusInTransit {
		return 0, false
	}
	total := r.DeliveryDate.Sub(r.PickupDate)
	if total <= 0 {
		return 0, false
	}
	if now.Before(r.PickupDate) || now.After(r.DeliveryDate) {
		return 0, false
	}
	pct := float64(now.Sub(r.PickupDate)) / float64(total) * 100
	return Clamp(int(pct)), true
}

func ShouldApplyDerived(stored, derived int) bool {
	d := derived - stored
	if d < 0 {
		d = -d
	}
	return d > DerivedThreshold
}

// Label синтезирует подпись текущего положения.
func Label(r *models.Route, percent int) string {
	switch Clamp(percent) {
	case 0:
		return r.Origin.City
	case 100:
		return r.Destination.City
	default:
		return r.Origin.City + " → " + r.Destination.City
	}
}

// ApplyUpdate применяет новый процент к трекингу. Второе значение true, если дошли до 100%:
// вызывающему стоит предложить завершить маршрут, но статус здесь не меняется.
func ApplyUpdate(r *models.Route, current models.Tracking, newPercent int, manualLocation string, now time.Time) (models.Tracking, bool) {
	pct := Clamp(newPercent)

	out := current
	out.RouteID = r.ID
	out.ProgressPercent = pct
	out.LastUpdate = now

	if pct == 100 {
		_, dest := Endpoints(r)
		out.SetCoords(dest)
		out.CurrentLocation = r.Destination.City
		return out, true
	}

	out.SetCoords(ComputePosition(r, pct))
	label := strings.TrimSpace(manualLocation)
	if label == "" {
		label = Label(r, pct)
	}
	out.CurrentLocation = label
	return out, false
}

// Initial возвращает трекинг в пункте отправления с нулевым прогрессом.
func Initial(r *models.Route, now time.Time) models.Tracking {
	t := models.Tracking{
		RouteID:         r.ID,
		CurrentLocation: r.Origin.City,
		ProgressPercent: 0,
		LastUpdate:      now,
	}
	origin, _ := Endpoints(r)
	t.SetCoords(origin)
	return t
}

func SnapToDestination(r *models.Route, now time.Time) models.Tracking {
	t := models.Tracking{
		RouteID:         r.ID,
		CurrentLocation: r.Destination.City,
		ProgressPercent: 100,
		LastUpdate:      now,
	}
	_, dest := Endpoints(r)
	t.SetCoords(dest)
	return t
}

// CurrentPoint отдаёт сохранённые координаты или пункт отправления, если их нет.
func CurrentPoint(r *models.Route, t models.Tracking) models.Point {
	if t.HasCoords() {
		p := models.Point{Lat: *t.CurrentLat, Lng: *t.CurrentLng}
		if ValidPoint(p) {
			return p
		}
	}
	origin, _ := Endpoints(r)
	return origin
}

func CoordsChanged(stored models.Tracking, computed models.Point) bool {
	if !stored.HasCoords() {
		return true
	}
	return math.Abs(*stored.CurrentLat-computed.Lat) > CoordsEpsilon ||
		math.Abs(*stored.CurrentLng-computed.Lng) > CoordsEpsilon
}

func View(r *models.Route, t models.Tracking) models.TrackingView {
	origin, dest := Endpoints(r)
	loc := t.CurrentLocation
	if loc == "" {
		loc = Label(r, t.ProgressPercent)
	}
	return models.TrackingView{
		RouteID:         r.ID,
		Origin:          origin,
		Destination:     dest,
		Current:         CurrentPoint(r, t),
		ProgressPercent: Clamp(t.ProgressPercent),
		CurrentLocation: loc,
		Status:          r.Status,
		LastUpdate:      t.LastUpdate,
	}
}

// ValidPoint отсекает NaN, выход за диапазон и незаполненные 0,0.
func ValidPoint(p models.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return false
	}
	return !(p.Lat == 0 && p.Lng == 0)
}

package geo

// CumulativeKm returns the running distance along path, starting at 0.
func CumulativeKm(path []Point) []float64 {
	n := len(path)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	for i := 1; i < n; i++ {
		cum[i] = cum[i-1] + DistanceKm(path[i-1], path[i])
	}
	return cum
}

// Interpolate walks km along path and returns the position reached and the
// bearing of the segment it lies on. Distances outside [0,total] clamp to the ends.
func Interpolate(path []Point, cum []float64, km float64) (Point, float64) {
	n := len(path)
	if n == 0 {
		return Point{}, 0
	}
	if n == 1 || len(cum) != n {
		return path[0], 0
	}
	total := cum[n-1]
	if total == 0 || km <= 0 {
		return path[0], BearingDeg(path[0], path[1])
	}
	if km >= total {
		return path[n-1], BearingDeg(path[n-2], path[n-1])
	}
	// find segment
	i := 1
	for i < n && cum[i] < km {
		i++
	}
	d0, d1 := cum[i-1], cum[i]
	p0, p1 := path[i-1], path[i]
	if d1 == d0 {
		return p0, BearingDeg(p0, p1)
	}
	frac := (km - d0) / (d1 - d0)
	return Point{
		Lat: p0.Lat + (p1.Lat-p0.Lat)*frac,
		Lng: p0.Lng + (p1.Lng-p0.Lng)*frac,
	}, BearingDeg(p0, p1)
}

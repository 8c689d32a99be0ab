package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// EPSGCode is the source CRS of projected assets: WGS 84 / UTM zone 43N.
const EPSGCode = 32643

// UTM zone 43N parameters.
const (
	centralMeridian = 75.0
	scaleFactor     = 0.9996
	falseEasting    = 500000.0
	falseNorthing   = 0.0
)

type spheroid struct {
	a, fi float64
}

func (s spheroid) A() float64 {
	return s.a
}

func (s spheroid) Fi() float64 {
	return s.fi
}

type transformFunc = func(a, b, c float64) (a2, b2, c2 float64)

var (
	toLonLat transformFunc
	toUTM    transformFunc
)

func init() {
	// +proj=utm +zone=43 +datum=WGS84 +units=m +no_defs
	s := spheroid{a: 6378137, fi: 298.257223563}
	datum := wgs84.Datum{
		Spheroid: s,
		Area: wgs84.AreaFunc(func(lon, lat float64) bool {
			return lon >= 66 && lon <= 84 && lat >= -1 && lat <= 85
		}),
	}
	proj := wgs84.ProjectedReferenceSystem{
		Datum:      datum,
		Projection: newTransverseMercator(s, centralMeridian, scaleFactor, falseEasting, falseNorthing),
	}

	epsg := wgs84.EPSG()
	epsg.Add(EPSGCode, proj)

	toLonLat = wgs84.Transform(epsg.Code(EPSGCode), wgs84.WGS84().LonLat())
	toUTM = wgs84.Transform(wgs84.WGS84().LonLat(), epsg.Code(EPSGCode))
}

// Reproject converts a UTM 43N easting/northing pair to WGS84 longitude/latitude.
// A pair that cannot be transformed is returned unchanged.
func Reproject(p orb.Point) orb.Point {
	return apply(toLonLat, p)
}

// Forward converts WGS84 longitude/latitude to UTM 43N easting/northing.
func Forward(p orb.Point) orb.Point {
	return apply(toUTM, p)
}

func apply(fn transformFunc, p orb.Point) (out orb.Point) {
	if !finite(p[0]) || !finite(p[1]) {
		return p
	}

	defer func() {
		if recover() != nil {
			out = p
		}
	}()

	x, y, _ := fn(p[0], p[1], 0)
	if !finite(x) || !finite(y) {
		return p
	}

	return orb.Point{x, y}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// transverseMercator is the Krüger series to sixth order in the third flattening
// (Karney 2011), accurate to a few nanometres within the UTM zone width.
// It implements wgs84.Projection for the spheroid it was built with.
type transverseMercator struct {
	lon0, k0, e0, n0 float64

	e     float64 // first eccentricity
	r     float64 // rectifying radius scaled by k0
	alpha [6]float64
	beta  [6]float64
}

func newTransverseMercator(s wgs84.Spheroid, lon0, k0, e0, n0 float64) transverseMercator {
	f := 1 / s.Fi()
	n := f / (2 - f)
	n2, n3 := n*n, n*n*n
	n4, n5, n6 := n2*n2, n2*n3, n3*n3

	return transverseMercator{
		lon0: lon0, k0: k0, e0: e0, n0: n0,
		e: math.Sqrt(f * (2 - f)),
		r: k0 * s.A() / (1 + n) * (1 + n2/4 + n4/64 + n6/256),
		alpha: [6]float64{
			n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180 - 127*n5/288 + 7891*n6/37800,
			13*n2/48 - 3*n3/5 + 557*n4/1440 + 281*n5/630 - 1983433*n6/1935360,
			61*n3/240 - 103*n4/140 + 15061*n5/26880 + 167603*n6/181440,
			49561*n4/161280 - 179*n5/168 + 6601661*n6/7257600,
			34729*n5/80640 - 3418889*n6/1995840,
			212378941 * n6 / 319334400,
		},
		beta: [6]float64{
			n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
			n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
			17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
			4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
			4583*n5/161280 - 108847*n6/3991680,
			20648693 * n6 / 638668800,
		},
	}
}

// FromLonLat projects geographic degrees to easting/northing.
func (tm transverseMercator) FromLonLat(lon, lat float64, _ wgs84.Spheroid) (east, north float64) {
	phi := lat * math.Pi / 180
	lam := (lon - tm.lon0) * math.Pi / 180

	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - tm.e*math.Atanh(tm.e*sinPhi))
	xi0 := math.Atan2(t, math.Cos(lam))
	eta0 := math.Atanh(math.Sin(lam) / math.Sqrt(1+t*t))

	xi, eta := xi0, eta0
	for j, a := range tm.alpha {
		k := 2 * float64(j+1)
		xi += a * math.Sin(k*xi0) * math.Cosh(k*eta0)
		eta += a * math.Cos(k*xi0) * math.Sinh(k*eta0)
	}

	return tm.e0 + tm.r*eta, tm.n0 + tm.r*xi
}

// ToLonLat inverts FromLonLat.
func (tm transverseMercator) ToLonLat(east, north float64, _ wgs84.Spheroid) (lon, lat float64) {
	xi0 := (north - tm.n0) / tm.r
	eta0 := (east - tm.e0) / tm.r

	xi, eta := xi0, eta0
	for j, b := range tm.beta {
		k := 2 * float64(j+1)
		xi -= b * math.Sin(k*xi0) * math.Cosh(k*eta0)
		eta -= b * math.Cos(k*xi0) * math.Sinh(k*eta0)
	}

	sinhEta := math.Sinh(eta)
	cosXi := math.Cos(xi)
	lam := math.Atan2(sinhEta, cosXi)

	// conformal latitude tangent, then Newton on the geodetic one
	tauC := math.Sin(xi) / math.Hypot(sinhEta, cosXi)
	tau := tauC
	e2 := tm.e * tm.e
	for i := 0; i < 10; i++ {
		sqrt1t := math.Sqrt(1 + tau*tau)
		sigma := math.Sinh(tm.e * math.Atanh(tm.e*tau/sqrt1t))
		tauI := tau*math.Sqrt(1+sigma*sigma) - sigma*sqrt1t
		d := (tauC - tauI) / math.Sqrt(1+tauI*tauI) * (1 + (1-e2)*tau*tau) / ((1 - e2) * sqrt1t)
		tau += d
		if math.Abs(d) < 1e-14 {
			break
		}
	}

	return tm.lon0 + lam*180/math.Pi, math.Atan(tau) * 180 / math.Pi
}

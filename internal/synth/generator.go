// Package synth generates seeded vehicle listings for demos, load checks and
// tests. Prices follow a fixed formula plus Gaussian noise, so a trained
// model has real signal to find.
package synth

import (
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/autotrain/internal/domain/dataset"
)

// Columns lists the generated fields in output order.
var Columns = []string{"_id", "make", "model", "year", "mileage", "engine_size", "fuel_type", "transmission", "listing_url", "price"}

type makeSpec struct {
	name    string
	models  []string
	premium float64
}

var makes = []makeSpec{
	{name: "ford", models: []string{"fiesta", "focus", "mondeo"}, premium: 0},
	{name: "toyota", models: []string{"yaris", "corolla", "rav4"}, premium: 1500},
	{name: "bmw", models: []string{"1 series", "3 series", "x5"}, premium: 9000},
	{name: "kia", models: []string{"picanto", "ceed", "sportage"}, premium: -1200},
	{name: "honda", models: []string{"jazz", "civic", "cr-v"}, premium: 800},
}

var (
	fuels         = []string{"petrol", "diesel", "hybrid", "electric"}
	fuelPremium   = map[string]float64{"petrol": 0, "diesel": 600, "hybrid": 2500, "electric": 5000}
	transmissions = []string{"manual", "automatic"}
)

// Options tunes generation.
type Options struct {
	Rows int
	Seed uint64
	// NullRate is the chance that a nullable field is missing.
	NullRate float64
	// DuplicateRate is the chance that a row repeats an earlier row with a new _id.
	DuplicateRate float64
	// Noise is the standard deviation of the price noise.
	Noise float64
	// PriceShift scales every price, to simulate market drift between runs.
	PriceShift float64
	// OmitTarget leaves price out of every record.
	OmitTarget bool
}

// DefaultOptions returns sensible generation settings.
func DefaultOptions() Options {
	return Options{Rows: 500, Seed: 7, NullRate: 0.03, DuplicateRate: 0.01, Noise: 800, PriceShift: 1}
}

// Generator produces vehicle records from a seeded source.
type Generator struct {
	opts  Options
	rng   *rand.Rand
	noise distuv.Normal
	miles distuv.LogNormal
	n     int
}

// New creates a generator.
func New(opts Options) *Generator {
	if opts.PriceShift == 0 {
		opts.PriceShift = 1
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	return &Generator{
		opts:  opts,
		rng:   rng,
		noise: distuv.Normal{Mu: 0, Sigma: math.Max(opts.Noise, 1e-9), Src: rng},
		miles: distuv.LogNormal{Mu: math.Log(12000), Sigma: 0.35, Src: rng},
	}
}

// Generate returns opts.Rows records.
func Generate(opts Options) []dataset.Record {
	g := New(opts)
	out := make([]dataset.Record, 0, opts.Rows)
	for len(out) < opts.Rows {
		if len(out) > 0 && g.rng.Float64() < opts.DuplicateRate {
			dup := make(dataset.Record, len(out[0]))
			for k, v := range out[g.rng.IntN(len(out))] {
				dup[k] = v
			}
			dup["_id"] = g.id()
			out = append(out, dup)
			continue
		}
		out = append(out, g.Next())
	}
	return out
}

func (g *Generator) id() string {
	g.n++
	return "veh-" + strconv.FormatUint(g.opts.Seed, 10) + "-" + strconv.Itoa(g.n)
}

// Next returns one fresh record.
func (g *Generator) Next() dataset.Record {
	mk := makes[g.rng.IntN(len(makes))]
	year := 2006 + g.rng.IntN(19)
	age := float64(2025 - year)
	mileage := math.Round(age*g.miles.Rand()/10) * 10
	engine := math.Round((1.0+g.rng.Float64()*2.0)*10) / 10
	fuel := fuels[g.rng.IntN(len(fuels))]
	trans := transmissions[g.rng.IntN(len(transmissions))]

	price := 24000 + mk.premium + fuelPremium[fuel] -
		1100*age -
		0.045*mileage +
		2200*(engine-1.6)
	if trans == "automatic" {
		price += 900
	}
	price = math.Max(500, price*g.opts.PriceShift+g.noise.Rand())

	id := g.id()
	rec := dataset.Record{
		"_id":          id,
		"make":         mk.name,
		"model":        mk.models[g.rng.IntN(len(mk.models))],
		"year":         year,
		"mileage":      g.maybe(mileage),
		"engine_size":  g.maybe(engine),
		"fuel_type":    g.maybe(fuel),
		"transmission": g.maybe(trans),
		"listing_url":  g.maybe("https://listings.example/" + id),
	}
	if !g.opts.OmitTarget {
		rec["price"] = math.Round(price)
	}
	return rec
}

func (g *Generator) maybe(v any) any {
	if g.opts.NullRate > 0 && g.rng.Float64() < g.opts.NullRate {
		return nil
	}
	return v
}

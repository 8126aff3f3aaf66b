// Package datasets provides small example datasets used by the examples
// and tests.
package datasets

import (
	"bytes"
	_ "embed"

	"github.com/kshedden/mixedsmooth/statmodel"
)

//go:embed sleepstudy.csv
var sleepstudy []byte

//go:embed engine.csv
var engine []byte

// Sleepstudy returns average reaction times per day for 18 subjects in
// a sleep deprivation study, with variables Reaction (milliseconds),
// Days (of sleep deprivation, 0 to 9) and Subject (an identifier).
func Sleepstudy() statmodel.Dataset {
	return mustRead(sleepstudy)
}

// Engine returns measurements of wear against engine size for 19
// engines, with variables wear and size.
func Engine() statmodel.Dataset {
	return mustRead(engine)
}

func mustRead(b []byte) statmodel.Dataset {
	ds, err := statmodel.ReadCSV(bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	return ds
}

package schema_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/autotrain/internal/domain/schema"
	. "github.com/smartystreets/goconvey/convey"
)

const vehicleSchema = `
columns:
  - {name: make, type: string}
  - {name: year, type: int}
  - {name: mileage, type: float, nullable: true}
  - {name: listing_url, type: string, nullable: true}
  - {name: price, type: FLOAT}
target: price
drop: [listing_url, listing_url]
`

func TestParse(t *testing.T) {
	Convey("Given a valid vehicle schema document", t, func() {
		c, err := schema.Parse([]byte(vehicleSchema))
		So(err, ShouldBeNil)

		Convey("Then columns keep declaration order", func() {
			So(c.Names(), ShouldResemble, []string{"make", "year", "mileage", "listing_url", "price"})
		})

		Convey("And types are normalized to lower case", func() {
			col, ok := c.Column("price")
			So(ok, ShouldBeTrue)
			So(col.Type, ShouldEqual, schema.TypeFloat)
		})

		Convey("And the drop list is deduplicated", func() {
			So(c.Drop(), ShouldResemble, []string{"listing_url"})
			So(c.Dropped("listing_url"), ShouldBeTrue)
		})

		Convey("And features exclude the target and dropped columns", func() {
			var names []string
			for _, f := range c.Features() {
				names = append(names, f.Name)
			}
			So(names, ShouldResemble, []string{"make", "year", "mileage"})
		})

		Convey("And returned slices are copies", func() {
			cols := c.Columns()
			cols[0].Name = "changed"
			So(c.Names()[0], ShouldEqual, "make")
		})
	})

	Convey("Given invalid schema documents", t, func() {
		cases := []struct{ name, doc string }{
			{"empty", ``},
			{"unknown key", "columns: [{name: a, type: int}]\ntarget: a\nextra: 1\n"},
			{"unknown type", "columns: [{name: a, type: decimal}]\ntarget: a\n"},
			{"duplicate column", "columns: [{name: a, type: int}, {name: a, type: int}]\ntarget: a\n"},
			{"missing target", "columns: [{name: a, type: int}]\n"},
			{"undeclared target", "columns: [{name: a, type: int}]\ntarget: b\n"},
			{"string target", "columns: [{name: a, type: string}]\ntarget: a\n"},
			{"dropped target", "columns: [{name: a, type: int}]\ntarget: a\ndrop: [a]\n"},
		}
		for _, tc := range cases {
			Convey("Then parsing fails for "+tc.name, func() {
				_, err := schema.Parse([]byte(tc.doc))
				So(errors.Is(err, schema.ErrInvalid), ShouldBeTrue)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a schema file on disk", t, func() {
		path := filepath.Join(t.TempDir(), "schema.yaml")
		So(os.WriteFile(path, []byte(vehicleSchema), 0o600), ShouldBeNil)

		Convey("Then Load parses it", func() {
			c, err := schema.Load(path)
			So(err, ShouldBeNil)
			So(c.Target(), ShouldEqual, "price")
		})
	})

	Convey("Given a missing schema file", t, func() {
		_, err := schema.Load(filepath.Join(t.TempDir(), "nope.yaml"))

		Convey("Then Load reports a load error", func() {
			So(errors.Is(err, schema.ErrLoad), ShouldBeTrue)
		})
	})
}

func TestTypeAccepts(t *testing.T) {
	Convey("Given declared types", t, func() {
		So(schema.TypeFloat.Accepts(schema.TypeInt), ShouldBeTrue)
		So(schema.TypeInt.Accepts(schema.TypeFloat), ShouldBeFalse)
		So(schema.TypeString.Accepts(schema.TypeInt), ShouldBeFalse)
		So(schema.TypeBool.Accepts(schema.TypeBool), ShouldBeTrue)
	})
}

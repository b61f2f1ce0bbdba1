package model_test

import (
	"testing"

	"github.com/okian/autotrain/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRunStates(t *testing.T) {
	Convey("Given the pipeline stages", t, func() {
		Convey("Then every stage maps to its own working state", func() {
			seen := map[model.RunState]bool{}
			for _, st := range model.Stages() {
				s := model.StateFor(st)
				So(s, ShouldNotEqual, model.StatePending)
				So(s.Terminal(), ShouldBeFalse)
				So(seen[s], ShouldBeFalse)
				seen[s] = true
			}
		})

		Convey("And only SUCCEEDED and FAILED are terminal", func() {
			So(model.StateSucceeded.Terminal(), ShouldBeTrue)
			So(model.StateFailed.Terminal(), ShouldBeTrue)
			So(model.StatePending.Terminal(), ShouldBeFalse)
		})
	})

	Convey("Given verdicts", t, func() {
		cur := 0.8
		So(model.EvaluationVerdict{}.Bootstrap(), ShouldBeTrue)
		So(model.EvaluationVerdict{CurrentScore: &cur}.Bootstrap(), ShouldBeFalse)
		So(model.ValidationReport{Status: model.StatusPass}.Passed(), ShouldBeTrue)
	})
}

package judge

import (
	"context"
	"testing"

	"github.com/Laisky/errors/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/model"
)

func judgeReturning(out string, err error, seen *string) *LLMJudge {
	return New(adaptor.CapabilityFunc(func(_ context.Context, _ *meta.Meta, req adaptor.Request) (string, error) {
		if seen != nil {
			*seen = req.Messages[0].Content
		}
		return out, err
	}), meta.New("k", "m"))
}

func TestJudge(t *testing.T) {
	transcript := []model.Message{
		{Role: model.RoleUser, Content: "I need a refund"},
		{Role: model.RoleAssistant, Content: "Refunds take 5 days"},
	}

	Convey("Given a conversation judge", t, func() {
		ctx := context.Background()

		Convey("A JSON verdict is returned as-is", func() {
			var prompt string
			v := judgeReturning(`{"isCorrect": false, "explanation": "missing confirmation"}`, nil, &prompt).
				Judge(ctx, transcript, "refund", "confirms refund")

			So(v.IsCorrect, ShouldBeFalse)
			So(v.Explanation, ShouldEqual, "missing confirmation")
			So(prompt, ShouldContainSubstring, "Human: I need a refund\n\nAssistant: Refunds take 5 days")
			So(prompt, ShouldContainSubstring, "Test Scenario: refund")
			So(prompt, ShouldContainSubstring, "Expected Behavior: confirms refund")
		})

		Convey("A fenced verdict is accepted", func() {
			v := judgeReturning("```json\n{\"isCorrect\": true, \"explanation\": \"ok\"}\n```", nil, nil).
				Judge(ctx, transcript, "s", "e")
			So(v, ShouldResemble, model.Verdict{IsCorrect: true, Explanation: "ok"})
		})

		Convey("Non-JSON output falls back to the safe verdict", func() {
			v := judgeReturning("The conversation looks great to me!", nil, nil).Judge(ctx, transcript, "s", "e")
			So(v, ShouldResemble, model.Verdict{IsCorrect: false, Explanation: "validation failed"})
		})

		Convey("A verdict without isCorrect falls back", func() {
			v := judgeReturning(`{"explanation":"hmm"}`, nil, nil).Judge(ctx, transcript, "s", "e")
			So(v, ShouldResemble, Fallback())
		})

		Convey("A capability failure falls back", func() {
			v := judgeReturning("", errors.New("529 overloaded"), nil).Judge(ctx, transcript, "s", "e")
			So(v, ShouldResemble, Fallback())
		})
	})
}

func TestParseVerdict(t *testing.T) {
	Convey("ParseVerdict tags failures with ErrJudgeParse", t, func() {
		_, err := ParseVerdict("nope")
		So(errors.Is(err, model.ErrJudgeParse), ShouldBeTrue)
	})
}

package api

import (
	"errors"
	"testing"
)

func validResponse(t RequestType) *TutorResponse {
	r := &TutorResponse{
		Type:        t,
		Intro:       "Vamos lá!",
		Steps:       []string{"passo 1", "passo 2"},
		Explanation: "explicação detalhada",
		XP:          10,
		Coins:       2,
	}
	if t == RequestAnswer {
		r.FinalAnswer = "4"
	}
	return r
}

func TestValidateTutorResponseNil(t *testing.T) {
	if err := ValidateTutorResponse(nil, RequestHelp); !errors.Is(err, ErrNoTutorResponse) {
		t.Fatalf("ValidateTutorResponse(nil) error = %v, want ErrNoTutorResponse", err)
	}
}

func TestValidateTutorResponseRequiresIntroAndExplanation(t *testing.T) {
	r := validResponse(RequestHelp)
	r.Intro = "  "
	if err := ValidateTutorResponse(r, RequestHelp); !errors.Is(err, ErrIncompleteResponse) {
		t.Fatalf("missing intro error = %v, want ErrIncompleteResponse", err)
	}

	r = validResponse(RequestHelp)
	r.Explanation = ""
	if err := ValidateTutorResponse(r, RequestHelp); !errors.Is(err, ErrIncompleteResponse) {
		t.Fatalf("missing explanation error = %v, want ErrIncompleteResponse", err)
	}
}

func TestValidateTutorResponseAnswerRequiresFinalAnswer(t *testing.T) {
	r := validResponse(RequestAnswer)
	r.FinalAnswer = ""
	if err := ValidateTutorResponse(r, RequestAnswer); !errors.Is(err, ErrMissingFinalAnswer) {
		t.Fatalf("answer without final answer error = %v, want ErrMissingFinalAnswer", err)
	}

	r = validResponse(RequestAnswer)
	if err := ValidateTutorResponse(r, RequestAnswer); err != nil {
		t.Fatalf("ValidateTutorResponse() error = %v", err)
	}
}

func TestValidateTutorResponseNormalizesStrayFinalAnswer(t *testing.T) {
	r := validResponse(RequestHelp)
	r.FinalAnswer = "não deveria estar aqui"
	if err := ValidateTutorResponse(r, RequestHelp); err != nil {
		t.Fatalf("ValidateTutorResponse() error = %v", err)
	}
	if r.FinalAnswer != "" {
		t.Fatalf("FinalAnswer = %q, want cleared for help replies", r.FinalAnswer)
	}
}

func TestRequestTypeRewardTier(t *testing.T) {
	cases := []struct {
		reqType   RequestType
		xp, coins int
	}{
		{RequestHelp, 10, 2},
		{RequestHint, 5, 1},
		{RequestAnswer, 2, 1},
	}
	for _, tc := range cases {
		xp, coins := tc.reqType.RewardTier()
		if xp != tc.xp || coins != tc.coins {
			t.Fatalf("%s tier = (%d, %d), want (%d, %d)", tc.reqType, xp, coins, tc.xp, tc.coins)
		}
	}
}

func TestRequestTypeValid(t *testing.T) {
	if !RequestHelp.Valid() || !RequestHint.Valid() || !RequestAnswer.Valid() {
		t.Fatalf("canonical request types should be valid")
	}
	if RequestType("chat").Valid() {
		t.Fatalf("unknown request type should be invalid")
	}
}

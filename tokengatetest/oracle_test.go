package tokengatetest

import (
	"context"
	"errors"
	"testing"

	"github.com/theadell/tokengate"
)

func TestOracle(t *testing.T) {
	o := NewOracle().Accept("good", "alice")

	token, err := o.VerifyToken(context.Background(), "good")
	if err != nil {
		t.Fatalf("VerifyToken(good) = %v", err)
	}
	if got, want := token.Subject, "alice"; got != want {
		t.Errorf("Subject = %q; want %q", got, want)
	}

	_, err = o.VerifyToken(context.Background(), "bad")
	if !tokengate.IsInvalidCredential(err) {
		t.Errorf("VerifyToken(bad) = %v; want invalid credential", err)
	}

	down := errors.New("down")
	o.FailWith(down)
	if _, err := o.VerifyToken(context.Background(), "good"); !errors.Is(err, down) {
		t.Errorf("VerifyToken() = %v; want %v", err, down)
	}
	if got, want := o.Calls(), 3; got != want {
		t.Errorf("Calls() = %d; want %d", got, want)
	}
}

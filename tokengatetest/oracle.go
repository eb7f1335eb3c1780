// Package tokengatetest provides test doubles for tokengate: an in-memory
// Oracle and a fake OpenID provider served over httptest.
package tokengatetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/theadell/tokengate"
)

// Oracle accepts a fixed set of raw tokens. Unknown tokens are refused with
// tokengate.CodeArgumentError; a configured failure overrides everything.
type Oracle struct {
	mu       sync.RWMutex
	accepted map[string]*tokengate.Token
	failure  error
	calls    atomic.Int64
}

func NewOracle() *Oracle {
	return &Oracle{accepted: make(map[string]*tokengate.Token)}
}

// Accept makes raw verify to a token whose subject is subject.
func (o *Oracle) Accept(raw, subject string) *Oracle {
	return o.AcceptToken(raw, tokengate.NewToken(raw, map[string]any{"sub": subject}))
}

// AcceptToken makes raw verify to tok.
func (o *Oracle) AcceptToken(raw string, tok *tokengate.Token) *Oracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted[raw] = tok
	return o
}

// FailWith makes every verification return err.
func (o *Oracle) FailWith(err error) *Oracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failure = err
	return o
}

// Calls reports how many times VerifyToken ran.
func (o *Oracle) Calls() int {
	return int(o.calls.Load())
}

func (o *Oracle) VerifyToken(ctx context.Context, rawToken string) (*tokengate.Token, error) {
	o.calls.Add(1)
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.failure != nil {
		return nil, o.failure
	}
	tok, ok := o.accepted[rawToken]
	if !ok {
		return nil, &tokengate.VerificationError{
			Code:        tokengate.CodeArgumentError,
			Description: "token not recognised",
		}
	}
	return tok, nil
}

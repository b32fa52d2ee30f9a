package applier

import (
	"context"
	"io"
	"sync"
)

// ScriptedBoard is a Board that serves a fixed list of postings and records
// applications. It backs development mode and tests; a real board client is
// wired in its place in production builds.
type ScriptedBoard struct {
	postings []Posting

	mu      sync.Mutex
	next    int
	applied []Posting
}

func NewScriptedBoard(postings []Posting) *ScriptedBoard {
	return &ScriptedBoard{postings: postings}
}

func (b *ScriptedBoard) Login(ctx context.Context, creds Credentials) error {
	return ctx.Err()
}

func (b *ScriptedBoard) NextPosting(ctx context.Context) (Posting, error) {
	if err := ctx.Err(); err != nil {
		return Posting{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.next >= len(b.postings) {
		return Posting{}, io.EOF
	}

	posting := b.postings[b.next]
	b.next++

	return posting, nil
}

func (b *ScriptedBoard) Apply(ctx context.Context, posting Posting) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.applied = append(b.applied, posting)

	return nil
}

// Applied returns the postings applied to so far.
func (b *ScriptedBoard) Applied() []Posting {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Posting, len(b.applied))
	copy(out, b.applied)

	return out
}

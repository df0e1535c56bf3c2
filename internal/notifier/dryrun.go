package notifier

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/pfrederiksen/marathon-events/internal/query"
)

// DryRunNotifier prints what would be posted without actually posting
type DryRunNotifier struct {
	out io.Writer
}

// NewDryRunNotifier creates a dry-run notifier writing to out, or stdout when out is nil
func NewDryRunNotifier(out io.Writer) *DryRunNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &DryRunNotifier{out: out}
}

// Notify prints the posts that would be made
func (n *DryRunNotifier) Notify(marathons []query.View) error {
	for i, m := range marathons {
		post := formatPost(m)
		if _, err := fmt.Fprintf(n.out, "--- Post %d/%d ---\n%s\n\n(Length: %d characters)\n\n",
			i+1, len(marathons), post, utf8.RuneCountInString(post)); err != nil {
			return fmt.Errorf("writing dry-run post: %w", err)
		}
	}
	return nil
}

package executor

import (
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/value"
)

var explainSchema = value.NewSchema([]value.Column{value.NewColumn("plan", value.Text())})

// executeExplain renders the inner plan's tree. EXPLAIN ANALYZE additionally
// requires a live transaction to run the plan against, which is the
// engine's job (it has the XID); Executor only renders the static plan
// shape here and leaves timing to whatever wraps it.
func (e *Executor) executeExplain(p *planner.Plan) (*QueryResult, error) {
	text := p.Inner.Explain()
	return &QueryResult{
		Schema: explainSchema,
		Rows:   []value.Row{{value.NewText(text)}},
	}, nil
}

package masking

// Finding counts the matches of one binding during a render. It never
// includes the matched text.
type Finding struct {
	Expression string   `json:"expression"`
	Strategy   Strategy `json:"strategy"`
	Count      int      `json:"count"`
}

// Result is the output of a detailed render.
type Result struct {
	Text     string    `json:"masked"`
	Findings []Finding `json:"findings"`
}

// Pipeline applies an active set to messages. Each binding receives the
// previous binding's output, so later rules see earlier masking.
type Pipeline struct {
	set  *ActiveSet
	sink SignalSink
}

// NewPipeline creates a pipeline over set. A nil sink discards signals.
func NewPipeline(set *ActiveSet, sink SignalSink) *Pipeline {
	if sink == nil {
		sink = nopSink{}
	}
	if set == nil {
		set = &ActiveSet{}
	}
	return &Pipeline{set: set, sink: sink}
}

// Render is the pure entry point: apply set to message with no signal sink.
func Render(message string, set *ActiveSet) (string, error) {
	return NewPipeline(set, nil).Render(message)
}

// Render masks message with every binding in order.
func (p *Pipeline) Render(message string) (string, error) {
	if len(p.set.bindings) == 0 {
		return message, nil
	}

	out := message
	for _, b := range p.set.bindings {
		var err error
		if out, _, err = b.apply(out, p.sink); err != nil {
			return "", err
		}
	}
	return out, nil
}

// RenderDetailed masks message and reports how often each binding fired.
func (p *Pipeline) RenderDetailed(message string) (Result, error) {
	result := Result{Text: message, Findings: []Finding{}}
	for _, b := range p.set.bindings {
		out, n, err := b.apply(result.Text, p.sink)
		if err != nil {
			return Result{}, err
		}
		if n > 0 {
			result.Findings = append(result.Findings, Finding{
				Expression: b.Source(),
				Strategy:   b.Strategy(),
				Count:      n,
			})
		}
		result.Text = out
	}
	return result, nil
}

// ActiveSet returns the set the pipeline renders with.
func (p *Pipeline) ActiveSet() *ActiveSet {
	return p.set
}

package dispatch

// Reply is the single answer returned for a turn.
type Reply struct {
	Text string `json:"reply"`
	Link string `json:"resource_link,omitempty"`
}

// Aggregate picks one outcome as the turn's reply: media first, then
// conversational, then any file producer, then the first outcome with text.
// Replies are never concatenated.
func Aggregate(outcomes []Outcome) Reply {
	tiers := [][]Category{
		{Media},
		{Conversational},
		{Gated, Generative},
	}
	for _, cats := range tiers {
		for _, o := range outcomes {
			if o.Text == "" || o.Status == StatusUnsupported {
				continue
			}
			for _, c := range cats {
				if o.Category == c {
					return Reply{Text: o.Text, Link: o.Link}
				}
			}
		}
	}
	for _, o := range outcomes {
		if o.Text != "" {
			return Reply{Text: o.Text, Link: o.Link}
		}
	}
	return Reply{}
}

package models

// Verse is a single corpus entry
type Verse struct {
	Ref     string `json:"ref"`
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   string `json:"verse"`
	Text    string `json:"text"`
}

// Span marks a matched region of verse text, in rune offsets
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Passage is a retrieved verse with its relevance score
type Passage struct {
	Verse
	Translation string `json:"translation"`
	Score       int    `json:"score"`
	Spans       []Span `json:"spans"`
}

// Citation is a verse reference extracted from generated text
type Citation struct {
	Ref     string `json:"ref"`
	Book    string `json:"book"`
	Chapter string `json:"chapter"`
	Verse   string `json:"verse"`
}

package semgroup

// GroupConfig describes one configured semantic group: a set of keywords
// whose presence in query text activates the group, and the text used to
// compute the group's representative vector (usually the keywords joined,
// or a short theme description).
type GroupConfig struct {
	Name        string
	Keywords    []string
	VectorText  string
}

// Activation is one group's detected activation in a query: the fraction
// of its keywords that matched, and which ones.
type Activation struct {
	Group         string
	Strength      float64 // matched keyword count / total keyword count, in (0,1]
	MatchedWords  []string
}

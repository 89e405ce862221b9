package domain

// OutcomeAlignment records which venue B outcome pays when the venue A side
// wins and which pays when it loses.
type OutcomeAlignment struct {
	Resolved  bool
	WinIndex  int
	LoseIndex int
}

// AlignWin builds a resolved alignment where venue B outcome i corresponds
// to the venue A side winning.
func AlignWin(i int) OutcomeAlignment {
	return OutcomeAlignment{Resolved: true, WinIndex: i, LoseIndex: 1 - i}
}

// MatchedEvent pairs one venue A representative with one venue B instrument
// for the same contest.
type MatchedEvent struct {
	GameID    GameID
	Sport     Sport
	A         NormalizedMarket
	B         NormalizedMarket
	Alignment OutcomeAlignment
}

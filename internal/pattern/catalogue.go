package pattern

// CatalogueEntry describes a detectable pattern.
type CatalogueEntry struct {
	Name        PatternType `json:"name"`
	Category    Category    `json:"category"`
	Description string      `json:"description"`
	// Source is "custom" for the registry predicates and "talib" for the
	// talib-cdl family.
	Source string `json:"source"`
}

var catalogue = []CatalogueEntry{
	{PatternMarubozu, CategoryTrendFollowing, "Single candle with no wicks", "custom"},
	{PatternThreeCandles, CategoryTrendFollowing, "Three consecutive large candles", "custom"},
	{PatternThreeMethods, CategoryTrendFollowing, "Five-candle continuation pattern", "custom"},
	{PatternTasuki, CategoryTrendFollowing, "Three-candle gap continuation", "custom"},
	{PatternHikkake, CategoryTrendFollowing, "Five-candle false breakout pattern", "custom"},
	{PatternQuintuplets, CategoryTrendFollowing, "Five consecutive small candles", "custom"},
	{PatternDoji, CategoryClassicContrarian, "Single candle with open = close", "custom"},
	{PatternHarami, CategoryClassicContrarian, "Two-candle reversal pattern", "custom"},
	{PatternTweezers, CategoryClassicContrarian, "Two candles with same high/low", "custom"},
	{PatternStickSandwich, CategoryClassicContrarian, "Three-candle sandwich pattern", "custom"},
	{PatternHammer, CategoryClassicContrarian, "Single candle with long lower shadow", "custom"},
	{PatternStar, CategoryClassicContrarian, "Three-candle star pattern", "custom"},
	{PatternPiercing, CategoryClassicContrarian, "Two-candle bullish reversal", "custom"},
	{PatternEngulfing, CategoryClassicContrarian, "Two-candle engulfing reversal", "custom"},
	{PatternAbandonedBaby, CategoryClassicContrarian, "Three-candle reversal with gaps", "custom"},
	{PatternSpinningTop, CategoryClassicContrarian, "Three-candle indecision pattern", "custom"},
	{PatternInsideUpDown, CategoryClassicContrarian, "Three-candle inside bar reversal", "custom"},
	{PatternTower, CategoryClassicContrarian, "Five-candle stabilization pattern", "custom"},
	{PatternOnNeck, CategoryClassicContrarian, "Two-candle same close pattern", "custom"},
	{PatternDoubleTrouble, CategoryModernTrendFollowing, "Two-candle ATR-validated pattern", "custom"},
	{PatternBottle, CategoryModernTrendFollowing, "Two-candle continuation pattern", "custom"},
	{PatternSlingshot, CategoryModernTrendFollowing, "Four-candle breakout pattern", "custom"},
	{PatternHPattern, CategoryModernTrendFollowing, "Three-candle Doji continuation", "custom"},
	{PatternDoppelganger, CategoryModernContrarian, "Three-candle twin candles pattern", "custom"},
	{PatternBlockade, CategoryModernContrarian, "Four-candle stabilization pattern", "custom"},
	{PatternBarrier, CategoryModernContrarian, "Three-candle same support/resistance", "custom"},
	{PatternMirror, CategoryModernContrarian, "Four-candle U-turn reversal", "custom"},
	{PatternShrinking, CategoryModernContrarian, "Five-candle compression pattern", "custom"},
	{PatternEuphoria, CategoryModernContrarian, "Three-candle exhaustion pattern", "custom"},

	{PatternCDLDoji, CategoryTALib, "Doji", "talib"},
	{PatternCDLDojiStar, CategoryTALib, "Doji star", "talib"},
	{PatternCDLEveningStar, CategoryTALib, "Evening star", "talib"},
	{PatternCDLPiercing, CategoryTALib, "Piercing line", "talib"},
	{PatternCDLAbandonedBaby, CategoryTALib, "Abandoned baby", "talib"},
	{PatternCDLMatchingLow, CategoryTALib, "Matching low", "talib"},
	{PatternCDLThreeWhite, CategoryTALib, "Three white soldiers", "talib"},
	{PatternCDLThreeBlack, CategoryTALib, "Three black crows", "talib"},
	{PatternCDLThreeInside, CategoryTALib, "Three inside up/down", "talib"},
	{PatternCDLThreeOutside, CategoryTALib, "Three outside up/down", "talib"},
	{PatternCDLThreeLineStrike, CategoryTALib, "Three-line strike", "talib"},
	{PatternCDLThreeStarsInSouth, CategoryTALib, "Three stars in the south", "talib"},
	{PatternCDLAdvanceBlock, CategoryTALib, "Advance block", "talib"},
	{PatternCDLBeltHold, CategoryTALib, "Belt-hold", "talib"},
	{PatternCDLBreakAway, CategoryTALib, "Breakaway", "talib"},
	{PatternCDLClosingMarubozu, CategoryTALib, "Closing marubozu", "talib"},
	{PatternCDLTwoCrows, CategoryTALib, "Two crows", "talib"},
	{PatternCDLStickSandwich, CategoryTALib, "Stick sandwich", "talib"},
	{PatternCDLConcealBabySwall, CategoryTALib, "Concealing baby swallow", "talib"},
}

// Catalogue lists every known pattern, registry predicates first.
func Catalogue() []CatalogueEntry {
	out := make([]CatalogueEntry, len(catalogue))
	copy(out, catalogue)
	return out
}

// Describe returns the catalogue entry for name.
func Describe(name PatternType) (CatalogueEntry, bool) {
	for _, e := range catalogue {
		if e.Name == name {
			return e, true
		}
	}
	return CatalogueEntry{}, false
}

// CategoryOf returns the category of name, or "" when unknown.
func CategoryOf(name PatternType) Category {
	e, _ := Describe(name)
	return e.Category
}

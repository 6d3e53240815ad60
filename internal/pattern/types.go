// Package pattern provides candlestick pattern detection and signal generation.
package pattern

// PatternType represents a candlestick pattern type.
type PatternType string

const (
	// Trend-following
	PatternMarubozu     PatternType = "marubozu"
	PatternThreeCandles PatternType = "three_candles"
	PatternThreeMethods PatternType = "three_methods"
	PatternTasuki       PatternType = "tasuki"
	PatternHikkake      PatternType = "hikkake"
	PatternQuintuplets  PatternType = "quintuplets"

	// Classic contrarian
	PatternDoji          PatternType = "doji"
	PatternHarami        PatternType = "harami"
	PatternTweezers      PatternType = "tweezers"
	PatternStickSandwich PatternType = "stick_sandwich"
	PatternHammer        PatternType = "hammer"
	PatternStar          PatternType = "star"
	PatternPiercing      PatternType = "piercing"
	PatternEngulfing     PatternType = "engulfing"
	PatternAbandonedBaby PatternType = "abandoned_baby"
	PatternSpinningTop   PatternType = "spinning_top"
	PatternInsideUpDown  PatternType = "inside_up_down"
	PatternTower         PatternType = "tower"
	PatternOnNeck        PatternType = "on_neck"

	// Modern trend-following
	PatternDoubleTrouble PatternType = "double_trouble"
	PatternBottle        PatternType = "bottle"
	PatternSlingshot     PatternType = "slingshot"
	PatternHPattern      PatternType = "h_pattern"

	// Modern contrarian
	PatternDoppelganger PatternType = "doppelganger"
	PatternBlockade     PatternType = "blockade"
	PatternBarrier      PatternType = "barrier"
	PatternMirror       PatternType = "mirror"
	PatternShrinking    PatternType = "shrinking"
	PatternEuphoria     PatternType = "euphoria"

	// TA-Lib candlestick family (talib-cdl-go)
	PatternCDLDoji              PatternType = "cdl_doji"
	PatternCDLDojiStar          PatternType = "cdl_doji_star"
	PatternCDLEveningStar       PatternType = "cdl_evening_star"
	PatternCDLPiercing          PatternType = "cdl_piercing"
	PatternCDLAbandonedBaby     PatternType = "cdl_abandoned_baby"
	PatternCDLMatchingLow       PatternType = "cdl_matching_low"
	PatternCDLThreeWhite        PatternType = "cdl_three_white"
	PatternCDLThreeBlack        PatternType = "cdl_three_black"
	PatternCDLThreeInside       PatternType = "cdl_three_inside"
	PatternCDLThreeOutside      PatternType = "cdl_three_outside"
	PatternCDLThreeLineStrike   PatternType = "cdl_three_line_strike"
	PatternCDLThreeStarsInSouth PatternType = "cdl_three_stars_south"
	PatternCDLAdvanceBlock      PatternType = "cdl_advance_block"
	PatternCDLBeltHold          PatternType = "cdl_belt_hold"
	PatternCDLBreakAway         PatternType = "cdl_break_away"
	PatternCDLClosingMarubozu   PatternType = "cdl_closing_marubozu"
	PatternCDLTwoCrows          PatternType = "cdl_two_crows"
	PatternCDLStickSandwich     PatternType = "cdl_stick_sandwich"
	PatternCDLConcealBabySwall  PatternType = "cdl_conceal_baby"
)

// Direction represents the pattern direction.
type Direction string

const (
	DirectionNone    Direction = ""
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Opposite returns the other trading direction; neutral and none are unchanged.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBullish:
		return DirectionBearish
	case DirectionBearish:
		return DirectionBullish
	}
	return d
}

// Category groups patterns in the catalogue.
type Category string

const (
	CategoryTrendFollowing       Category = "Trend-Following"
	CategoryClassicContrarian    Category = "Classic Contrarian"
	CategoryModernTrendFollowing Category = "Modern Trend-Following"
	CategoryModernContrarian     Category = "Modern Contrarian"
	CategoryTALib                Category = "TA-Lib Classic"
)

// Event is a single detection at bar Index.
type Event struct {
	Index     int         `json:"index"`
	Pattern   PatternType `json:"pattern"`
	Direction Direction   `json:"direction"`
}

// pick resolves a bullish/bearish test pair. Bullish wins when both hold.
func pick(bull, bear bool) Direction {
	switch {
	case bull:
		return DirectionBullish
	case bear:
		return DirectionBearish
	}
	return DirectionNone
}

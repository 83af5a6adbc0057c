package domain

import "github.com/shopspring/decimal"

// Crosses reports whether a tick from oldPrice to newPrice crosses trigger in
// the given orientation. Both bounds are inclusive, so a flat tick sitting
// exactly on the trigger matches Up, Down and Any alike. That double match is
// a known quirk and is kept as is.
func Crosses(o Orientation, trigger, oldPrice, newPrice decimal.Decimal) bool {
	switch o {
	case OrientationUp:
		return crossesUp(trigger, oldPrice, newPrice)
	case OrientationDown:
		return crossesDown(trigger, oldPrice, newPrice)
	case OrientationAny:
		return crossesUp(trigger, oldPrice, newPrice) || crossesDown(trigger, oldPrice, newPrice)
	}
	return false
}

func crossesUp(trigger, oldPrice, newPrice decimal.Decimal) bool {
	return newPrice.GreaterThanOrEqual(oldPrice) &&
		trigger.GreaterThanOrEqual(oldPrice) &&
		trigger.LessThanOrEqual(newPrice)
}

func crossesDown(trigger, oldPrice, newPrice decimal.Decimal) bool {
	return newPrice.LessThanOrEqual(oldPrice) &&
		trigger.LessThanOrEqual(oldPrice) &&
		trigger.GreaterThanOrEqual(newPrice)
}

// CrossedBy is Crosses applied to the threshold itself.
func (t Threshold) CrossedBy(oldPrice, newPrice decimal.Decimal) bool {
	return Crosses(t.Orientation, t.Price, oldPrice, newPrice)
}

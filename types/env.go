package types

import "strconv"

// ------------------------
// Readings
// ------------------------

// Reading is one decoded sensor measurement, tagged by kind.
// Button and PressMs are only meaningful for KindButtonPress.
type Reading struct {
	Kind    Kind
	Value   float32
	Button  ButtonID
	PressMs uint16
}

// R builds a plain measurement reading.
func R(k Kind, v float32) Reading { return Reading{Kind: k, Value: v} }

// Press builds a button-press reading.
func Press(b ButtonID, ms uint16) Reading {
	return Reading{Kind: KindButtonPress, Value: float32(ms), Button: b, PressMs: ms}
}

func (r Reading) String() string {
	if r.Kind == KindButtonPress {
		return "button_press(" + r.Button.String() + "," + strconv.Itoa(int(r.PressMs)) + "ms)"
	}
	return r.Kind.String() + "=" + strconv.FormatFloat(float64(r.Value), 'g', 6, 32) + r.Kind.Unit()
}

// ------------------------
// Buttons
// ------------------------

// ButtonID names one of the digital inputs of the bed panel.
type ButtonID uint8

const (
	ButtonUnknown ButtonID = iota
	ButtonTopLeft
	ButtonTopRight
	ButtonMiddleInner
	ButtonMiddleCenter
	ButtonMiddleOuter
	ButtonLowerInner
	ButtonLowerCenter
	ButtonLowerOuter

	buttonCount
)

var buttonNames = [buttonCount]string{
	ButtonUnknown:      "unknown",
	ButtonTopLeft:      "top_left",
	ButtonTopRight:     "top_right",
	ButtonMiddleInner:  "middle_inner",
	ButtonMiddleCenter: "middle_center",
	ButtonMiddleOuter:  "middle_outer",
	ButtonLowerInner:   "lower_inner",
	ButtonLowerCenter:  "lower_center",
	ButtonLowerOuter:   "lower_outer",
}

func (b ButtonID) String() string {
	if b < buttonCount {
		return buttonNames[b]
	}
	return "unknown"
}

// ParseButton maps a configured button name to its identifier.
func ParseButton(s string) (ButtonID, bool) {
	for i, n := range buttonNames {
		if n == s && ButtonID(i) != ButtonUnknown {
			return ButtonID(i), true
		}
	}
	return ButtonUnknown, false
}

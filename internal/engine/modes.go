package engine

import (
	"fmt"
	"slices"
)

const (
	FlyingAuto     = "Auto"
	FlyingAssisted = "Assisted"
	FlyingReturn   = "Return"
	FlyingManual   = "Manual"
)

// copterModes maps the ArduCopter custom_mode of a heartbeat to its name
var copterModes = map[uint32]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	8:  "POSITION",
	9:  "LAND",
	10: "OF_LOITER",
	11: "DRIFT",
	12: "SPORT",
	13: "FLIP",
	14: "AUTOTUNE",
	15: "POSHOLD",
	16: "BRAKE",
	17: "THROW",
	18: "AVOID_ADSB",
	19: "GUIDED_NOGPS",
	20: "SMART_RTL",
	21: "FLOWHOLD",
	22: "FOLLOW",
	23: "ZIGZAG",
	24: "SYSTEMID",
	25: "AUTOROTATE",
	26: "AUTO_RTL",
}

var (
	autoModes     = []string{"AUTO", "GUIDED", "RTL", "SMART_RTL", "AUTO_RTL"}
	assistedModes = []string{"LOITER", "CIRCLE", "POSHOLD"}
	returnModes   = []string{"RTL"}
)

// ModeName returns the flight mode name for a custom_mode code, or
// UNKNOWN_<code> for codes missing from the table
func ModeName(customMode uint32) string {
	if name, ok := copterModes[customMode]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", customMode)
}

// Classify returns the flying type of a mode. The Auto set is checked first, so
// RTL, which is also listed as a return mode, classifies as Auto.
func Classify(mode string) string {
	switch {
	case slices.Contains(autoModes, mode):
		return FlyingAuto
	case slices.Contains(assistedModes, mode):
		return FlyingAssisted
	case slices.Contains(returnModes, mode):
		return FlyingReturn
	default:
		return FlyingManual
	}
}

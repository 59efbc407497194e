package scanner

import "strings"

// familyPatterns is the fixed substring dictionary used to infer a
// miner's family from its firmware "Type"/"Miner" string.
var familyPatterns = []struct {
	substr string
	family string
}{
	{"antminer", "Antminer"}, {"bmminer", "Antminer"}, {"s19", "Antminer"}, {"s21", "Antminer"},
	{"whatsminer", "Whatsminer"}, {"btminer", "Whatsminer"}, {"m30", "Whatsminer"}, {"m50", "Whatsminer"}, {"m60", "Whatsminer"},
	{"avalon", "Avalon"}, {"canaan", "Avalon"},
	{"braiins", "Braiins"}, {"bosminer", "Braiins"}, {"bos", "Braiins"},
	{"vnish", "Vnish"},
	{"luxos", "LuxOS"}, {"luxor", "LuxOS"},
}

// classifyFamily matches typeStr (a firmware "Type" or "Miner" field)
// against the fixed substring dictionary. Unknown but reachable devices
// are reported as UNKNOWN.
func classifyFamily(typeStr string) string {
	lower := strings.ToLower(typeStr)
	for _, p := range familyPatterns {
		if strings.Contains(lower, p.substr) {
			return p.family
		}
	}
	return "UNKNOWN"
}

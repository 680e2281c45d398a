// Package georef holds the geographic reference data the pipeline joins
// emissions records against: the state code table and the county FIPS
// index.
package georef

import "strings"

// stateNames maps 2-letter state/territory codes to the upstream's
// all-caps state names. Queries are validated against this table before
// any network call is made.
var stateNames = map[string]string{
	"AL": "ALABAMA",
	"AK": "ALASKA",
	"AZ": "ARIZONA",
	"AR": "ARKANSAS",
	"CA": "CALIFORNIA",
	"CO": "COLORADO",
	"CT": "CONNECTICUT",
	"DE": "DELAWARE",
	"FL": "FLORIDA",
	"GA": "GEORGIA",
	"HI": "HAWAII",
	"ID": "IDAHO",
	"IL": "ILLINOIS",
	"IN": "INDIANA",
	"IA": "IOWA",
	"KS": "KANSAS",
	"KY": "KENTUCKY",
	"LA": "LOUISIANA",
	"ME": "MAINE",
	"MD": "MARYLAND",
	"MA": "MASSACHUSETTS",
	"MI": "MICHIGAN",
	"MN": "MINNESOTA",
	"MS": "MISSISSIPPI",
	"MO": "MISSOURI",
	"MT": "MONTANA",
	"NE": "NEBRASKA",
	"NV": "NEVADA",
	"NH": "NEW HAMPSHIRE",
	"NJ": "NEW JERSEY",
	"NM": "NEW MEXICO",
	"NY": "NEW YORK",
	"NC": "NORTH CAROLINA",
	"ND": "NORTH DAKOTA",
	"OH": "OHIO",
	"OK": "OKLAHOMA",
	"OR": "OREGON",
	"PA": "PENNSYLVANIA",
	"RI": "RHODE ISLAND",
	"SC": "SOUTH CAROLINA",
	"SD": "SOUTH DAKOTA",
	"TN": "TENNESSEE",
	"TX": "TEXAS",
	"UT": "UTAH",
	"VT": "VERMONT",
	"VA": "VIRGINIA",
	"WA": "WASHINGTON",
	"WV": "WEST VIRGINIA",
	"WI": "WISCONSIN",
	"WY": "WYOMING",
	"DC": "DISTRICT OF COLUMBIA",
	"PR": "PUERTO RICO",
	"VI": "VIRGIN ISLANDS",
	"GU": "GUAM",
	"AS": "AMERICAN SAMOA",
	"MP": "NORTHERN MARIANA ISLANDS",
}

// IsKnownState reports whether code is a registered 2-letter state or
// territory code. Matching is case-insensitive.
func IsKnownState(code string) bool {
	_, ok := stateNames[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// StateName returns the upstream's all-caps name for a state code, and
// whether the code is known.
func StateName(code string) (string, bool) {
	name, ok := stateNames[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// NormalizeStateCode upper-cases and trims a state code without checking
// membership.
func NormalizeStateCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// KnownStateCodes returns every registered code. The slice is a copy.
func KnownStateCodes() []string {
	codes := make([]string, 0, len(stateNames))
	for code := range stateNames {
		codes = append(codes, code)
	}
	return codes
}

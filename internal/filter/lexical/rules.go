package lexical

import (
	"regexp"
	"strings"

	"github.com/af-corp/aegis-moderation/internal/types"
)

// RulesVersion identifies the pattern set; bump it whenever a group changes.
const RulesVersion = "2024.11-1"

// Rule is one category's pattern group.
type Rule struct {
	Name     string
	Category types.Category
	Regex    *regexp.Regexp
}

// Word boundaries are Unicode-aware: \b in RE2 only understands ASCII, which
// would miss terms starting with letters such as "đ".
const (
	boundaryStart = `(?:^|[^\p{L}\p{N}])`
	boundaryEnd   = `(?:$|[^\p{L}\p{N}])`
)

// group compiles a word-bounded, case-insensitive alternation of terms.
// Terms are regex fragments so obfuscated spellings can be expressed.
func group(terms ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + boundaryStart + `(?:` + strings.Join(terms, "|") + `)` + boundaryEnd)
}

// DefaultRules returns the built-in pattern groups. Terms are written in
// their folded form so they match both raw and normalized input.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "violence_hard",
			Category: types.CategoryViolenceHard,
			Regex: group(
				`k[i1!|]ll\s+(?:you|u|him|her|them|everyone)`,
				`murder(?:ed|ing|s)?`,
				`massacre`,
				`behead(?:ed|ing)?`,
				`shoot\s+up`,
				`mass\s+shooting`,
				`stab(?:bed|bing)?\s+(?:you|u|him|her|them)`,
				`bomb\s+threat`,
				`terroris[mt]`,
				`rape[ds]?`,
				`giet\s+(?:may|mi|nguoi|het|chet)`,
				`chem\s+chet`,
				`dam\s+chet`,
				`khung\s+bo`,
			),
		},
		{
			Name:     "violence_soft",
			Category: types.CategoryViolenceSoft,
			Regex: group(
				`punch(?:ed|ing)?\s+(?:you|u|him|her|them)`,
				`beat\s+(?:you|u|him|her|them)\s+up`,
				`slap(?:ped)?\s+(?:you|u|him|her|them)`,
				`fight\s+me`,
				`danh\s+nhau`,
				`dap\s+(?:may|mi|no)`,
				`tat\s+vao\s+mat`,
			),
		},
		{
			Name:     "sexual_explicit",
			Category: types.CategorySexualExplicit,
			Regex: group(
				`p[o0]rn(?:o|hub)?`,
				`xxx`,
				`nudes?`,
				`blow\s*job`,
				`sex\s*tape`,
				`onlyfans\s+leak`,
				`dit\s+nhau`,
				`lam\s+tinh`,
				`phim\s+sex`,
				`clip\s+nong`,
			),
		},
		{
			Name:     "self_harm",
			Category: types.CategorySelfHarm,
			Regex: group(
				`su[i1]c[i1]de`,
				`k[i1!|]ll\s+my\s*self`,
				`cut(?:ting)?\s+my\s*self`,
				`self[\s-]*harm`,
				`want\s+to\s+die`,
				`tu\s+sat`,
				`muon\s+chet`,
				`khong\s+muon\s+song`,
			),
		},
		{
			Name:     "hate",
			Category: types.CategoryHate,
			Regex: group(
				`n[i1!]gg(?:er|a|ah)s?`,
				`f[a@4]gg?[o0]ts?`,
				`k[i1]kes?`,
				`heil\s+hitler`,
				`white\s+power`,
				`sub[\s-]?human`,
				`ethnic\s+cleansing`,
				`go\s+back\s+to\s+your\s+country`,
			),
		},
		{
			Name:     "harassment",
			Category: types.CategoryHarassment,
			Regex: group(
				`f[u*@]c?k(?:ing|er|ed|s)?`,
				`fck`,
				`sh[i1!*]t`,
				`b[i1!*]tch(?:es)?`,
				`a[s$]{2}hole`,
				`c[u*]nt`,
				`stfu`,
				`kys`,
				`dit\s+(?:me|con\s+me|cu)`,
				`dmm`,
				`dcm`,
				`vcl`,
				`vkl`,
				`clgt`,
				`(?:do|oc|thang)\s+cho`,
			),
		},
	}
}

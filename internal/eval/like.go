package eval

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"
)

const likeCacheSize = 256

var foldCaser = cases.Fold()

// likeCompiler memoizes the regexp compiled from a SQL LIKE pattern so a
// predicate run over many rows pays the translation cost once per distinct
// pattern rather than once per row.
type likeCompiler struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

func newLikeCompiler() *likeCompiler {
	c, _ := lru.New[string, *regexp.Regexp](likeCacheSize)
	return &likeCompiler{cache: c}
}

func (lc *likeCompiler) compile(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	key := pattern
	if caseInsensitive {
		key = "ci:" + pattern
	}
	if re, ok := lc.cache.Get(key); ok {
		return re, nil
	}
	re, err := regexp.Compile(likePatternToRegexp(pattern, caseInsensitive))
	if err != nil {
		return nil, err
	}
	lc.cache.Add(key, re)
	return re, nil
}

func (lc *likeCompiler) match(s, pattern string, caseInsensitive bool) (bool, error) {
	re, err := lc.compile(pattern, caseInsensitive)
	if err != nil {
		return false, err
	}
	if caseInsensitive {
		s = foldCaser.String(s)
	}
	return re.MatchString(s), nil
}

// likePatternToRegexp translates a SQL LIKE pattern ('%' any run, '_' any
// one rune, '\' escapes the next char) into an anchored regexp.
func likePatternToRegexp(pattern string, caseInsensitive bool) string {
	var sb strings.Builder
	sb.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		case '\\':
			if i+1 < len(runes) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(runes[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	out := sb.String()
	if caseInsensitive {
		out = "(?i)" + out
	}
	return out
}

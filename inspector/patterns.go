package inspector

import "regexp"

// Signatures are matched case-insensitively in order; the first hit wins.
var xssSignatures = compileAll(
	`<script[^>]*>.*?</script>`,
	`javascript:`,
	`onerror\s*=`,
	`onload\s*=`,
	`onclick\s*=`,
	`onmouseover\s*=`,
	`onfocus\s*=`,
	`onblur\s*=`,
	`<iframe[^>]*>`,
	`<embed[^>]*>`,
	`<object[^>]*>`,
	`eval\s*\(`,
	`document\.cookie`,
	`document\.write`,
	`window\.location`,
	`<img[^>]+onerror`,
	`<svg[^>]+onload`,
)

var sqlInjectionSignatures = compileAll(
	`(\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE)\b)`,
	`(\b(UNION|JOIN)\b.*\b(SELECT|FROM)\b)`,
	`(\b(OR|AND)\b\s+\d+\s*=\s*\d+)`,
	`(\b(OR|AND)\b\s+['"]?\w+['"]?\s*=\s*['"]?\w+['"]?)`,
	`(--\s*$)`,
	`(;\s*$)`,
	`(/\*.*\*/)`,
	`(@@version)`,
	`(@@datadir)`,
	`(CONCAT\s*\()`,
	`(CHAR\s*\()`,
	`(LOAD_FILE\s*\()`,
	`(INTO\s+OUTFILE)`,
	`(INTO\s+DUMPFILE)`,
	`(BENCHMARK\s*\()`,
	`(SLEEP\s*\()`,
	`(WAITFOR\s+DELAY)`,
	`(EXEC\s*\()`,
	`(EXECUTE\s*\()`,
	`(XP_CMDSHELL)`,
	`(INFORMATION_SCHEMA)`,
	`(SYSOBJECTS)`,
	`(SYSCOLUMNS)`,
	`('\s*(OR|AND)\s+')`,
	`(\bOR\b\s+'[^']*'\s*=\s*'[^']*')`,
	`(\bAND\b\s+'[^']*'\s*=\s*'[^']*')`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func matchAny(signatures []*regexp.Regexp, value string) bool {
	if value == "" {
		return false
	}
	for _, re := range signatures {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

package classify

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// Result is the verdict for one remote response plus whatever metadata
// could be pulled out of it. Extraction is best-effort: absent fields are
// empty strings, never errors.
type Result struct {
	Succeeded  bool   `json:"succeeded"`
	CommitHash string `json:"commit_hash"`
	RunId      string `json:"run_id"`
}

// Response headers a deploy script may set to declare its own outcome.
var statusHeaders = []string{"X-Deployment-Status", "X-Deploy-Status", "X-Status"}

var (
	reStatusMarker = regexp.MustCompile(`(?i)deployment_status\s*=\s*success`)
	reHexHash      = regexp.MustCompile(`\b[0-9a-fA-F]{40}\b`)
	reGitPull      = regexp.MustCompile(`Updating\s+[0-9a-fA-F]+\.\.([0-9a-fA-F]+)`)
	reGitReset     = regexp.MustCompile(`HEAD is now at ([0-9a-fA-F]+)`)
	reRunId        = regexp.MustCompile(`Run ID:\s*([0-9_\-]+)`)
)

var successPhrases = []string{"deployment finished successfully", "deployment started"}
var failurePhrases = []string{"command failed", "fatal error"}

// Classify turns an ambiguous remote response into a verdict. Precedence:
// a recognized success header forces success over everything else; an
// explicit failure marker in the body forces failure over status- and
// marker-based success but never over a success header; then a conventional
// 2xx status; finally success markers in the body.
func Classify(status int, header http.Header, body string) Result {
	res := Result{
		CommitHash: ExtractCommitHash(body),
		RunId:      ExtractRunId(body),
	}
	if headerSuccess(header) {
		res.Succeeded = true
		return res
	}
	lower := strings.ToLower(body)
	for _, phrase := range failurePhrases {
		if strings.Contains(lower, phrase) {
			return res
		}
	}
	if status >= 200 && status <= 299 {
		res.Succeeded = true
		return res
	}
	if reStatusMarker.MatchString(body) {
		res.Succeeded = true
		return res
	}
	for _, phrase := range successPhrases {
		if strings.Contains(lower, phrase) {
			res.Succeeded = true
			return res
		}
	}
	return res
}

func headerSuccess(header http.Header) bool {
	if header == nil {
		return false
	}
	for _, name := range statusHeaders {
		for _, value := range header.Values(name) {
			if strings.Contains(strings.ToLower(value), "success") {
				return true
			}
		}
	}
	return false
}

// ExtractCommitHash pulls a commit hash out of a response body, first match
// wins: a json commit_hash field, a bare 40-hex string, the git-pull
// "Updating old..new" form, then "HEAD is now at".
func ExtractCommitHash(body string) string {
	if hash := jsonField(body, "commit_hash"); hash != "" {
		return hash
	}
	if m := reHexHash.FindString(body); m != "" {
		return m
	}
	if m := reGitPull.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	if m := reGitReset.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// ExtractRollbackCommit is the rollback variant: rollback scripts may
// answer with a rollback_target_commit field instead of commit_hash.
func ExtractRollbackCommit(body string) string {
	if hash := ExtractCommitHash(body); hash != "" {
		return hash
	}
	return jsonField(body, "rollback_target_commit")
}

func ExtractRunId(body string) string {
	if m := reRunId.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

func jsonField(body, key string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return ""
	}
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

package brain

import (
	"fmt"
	"strings"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
)

// maxPromptExchanges caps how much thread history goes into a prompt.
const maxPromptExchanges = 10

const routerSystemPrompt = `You are a supervisor agent. Your job is to route user requests to the correct handler.
Answer with a single JSON object and nothing else.`

const routerInstructions = `Here are the available handlers and their capabilities:

- **log-answer**: Answers questions about logs and explores potential issues.
- **issue-creation**: Finds issues in the logs, or takes an issue the user describes, and files it in a GitHub or GitLab repository.
- **remediation**: Provides solutions or recommendations for issues.

Respond with {"next": "<handler>", "repo_target": "<repository URL or owner/repo, empty if none>", "issue_text": "<issue the user explicitly asked to file, empty otherwise>"}.

Here are some examples of user queries and the correct response:

**User Query:** "for cloud run service vllm-gemma-3-1b-it, can you tell if the performance has improved from yesterday's initial requests to today's?"
**Response:** {"next": "log-answer", "repo_target": "", "issue_text": ""}

**User Query:** "I need a solution for the high latency in my 'vllm-gemma' service."
**Response:** {"next": "remediation", "repo_target": "", "issue_text": ""}

**User Query:** "How can I optimize the cold start time for my Cloud Run service?"
**Response:** {"next": "remediation", "repo_target": "", "issue_text": ""}

**User Query:** "is there a way to execute or cache the \"Capturing CUDA graphs (mixed prefill-decode, PIECEWISE): \" part during cloud build stage or during the first cold start, so that subsequent cold starts can be shorter?"
**Response:** {"next": "remediation", "repo_target": "", "issue_text": ""}

**User Query:** "please create a github issue to repository https://github.com/acme/vllm-container-prewarm, as a feature request to enable the \"Caching Compiled Kernels\" option"
**Response:** {"next": "issue-creation", "repo_target": "https://github.com/acme/vllm-container-prewarm", "issue_text": "Feature request: enable the \"Caching Compiled Kernels\" option"}

**User Query:** "check the logs of cloud run service api and open issues for any errors you find"
**Response:** {"next": "issue-creation", "repo_target": "", "issue_text": ""}

**User Query:** "no, I want you to create the issue in Github"
**Response:** {"next": "issue-creation", "repo_target": "", "issue_text": ""}`

const logAnalystSystemPrompt = "You are a helpful log analysis assistant for Google Cloud services."

const remediationSystemPrompt = "You are an expert in analyzing Google Cloud logs and providing solutions " +
	"for reliability and performance problems, such as cold starts, build times and crash loops."

func routerPrompt(in RouteInput, ex Extraction) string {
	var b strings.Builder
	b.WriteString(routerInstructions)
	b.WriteString("\n\n")

	if known := knownContext(in, ex); known != "" {
		b.WriteString(known)
		b.WriteString("\n")
	}

	for _, e := range recent(in.History) {
		fmt.Fprintf(&b, "User: %s\nAgent: %s\n", e.User, e.Assistant)
	}

	fmt.Fprintf(&b, "\n**User Query:** %s\n**Response:**", in.Utterance)
	return b.String()
}

func knownContext(in RouteInput, ex Extraction) string {
	var parts []string
	svc := ex.Service
	if svc == nil {
		svc = in.KnownService
	}
	if svc != nil {
		parts = append(parts, fmt.Sprintf("Service in scope: %s %s.", svc.Category, svc.Name))
	}
	repo := ex.RepoURL
	if repo == "" {
		repo = in.KnownRepo
	}
	if repo != "" {
		parts = append(parts, fmt.Sprintf("Repository in scope: %s.", repo))
	}
	return strings.Join(parts, " ")
}

func recent(history []model.Exchange) []model.Exchange {
	if len(history) > maxPromptExchanges {
		return history[len(history)-maxPromptExchanges:]
	}
	return history
}

func formatHistory(history []model.Exchange) string {
	var b strings.Builder
	for _, e := range recent(history) {
		fmt.Fprintf(&b, "User: %s\nBot: %s\n", e.User, e.Assistant)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return b.String()
}

func summaryPrompt(svc *model.ServiceIdentity, res logquery.Result, logs string) string {
	return fmt.Sprintf(`Summarize the following %d log entries of %s %q (%s).
Group repeated messages, keep error messages, counts, timestamps of first and last occurrence and anything that looks like a failure.

Logs:
%s`, len(res.Entries), svc.Category, svc.Name, res.Window, logs)
}

func logAnswerPrompt(in HandlerInput, res logquery.Result, logs string, summarized bool) string {
	label := "Latest Logs"
	if summarized {
		label = "Log Summary"
	}
	window := res.Window.String()
	if res.Escalated {
		window += " (nothing was found in the default window, so the search was widened)"
	}
	return fmt.Sprintf(`Answer the user's question based on the provided conversation history and the logs.

Service: %s %q
Time range: %s

Conversation History:
%s
%s:
%s

User Question: %s`, in.Service.Category, in.Service.Name, window, formatHistory(in.History), label, logs, in.Utterance)
}

func detectionPrompt(svc *model.ServiceIdentity, existing []model.TrackedItem, entries []string) string {
	existingText := "No existing issues."
	if len(existing) > 0 {
		lines := make([]string, len(existing))
		for i, item := range existing {
			lines[i] = fmt.Sprintf("- #%d [%s] %s", item.Number, item.State, item.Title)
		}
		existingText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Analyze the following logs of %s %q and identify any potential issues, errors, warnings, or problems that should be tracked.

IMPORTANT INSTRUCTIONS:
- Look for actual problems, errors, warnings, misconfigurations, or performance issues
- Each issue should be actionable and specific
- Avoid creating issues that are duplicates of existing ones (listed below)
- Return a JSON array even if there are no issues (return empty array [])

Existing Issues (do not duplicate these):
%s

For each new issue you identify, provide:
- description: A clear, concise title describing the issue
- priority: "High" (critical/blocking), "Medium" (important), or "Low" (minor)
- log_entries: Array of relevant log lines that show the problem

Each array element must match this JSON schema:
%s

Example:
[
  {
    "description": "404 errors on /chat/completions endpoint",
    "priority": "High",
    "log_entries": ["POST /chat/completions - 404 Not Found"]
  }
]

If no issues are found, return: []

Logs to analyze:
%s`, svc.Category, svc.Name, existingText, llm.SchemaText[model.Issue](), strings.Join(entries, "\n"))
}

func remediationPrompt(svc *model.ServiceIdentity, topic, logs string) string {
	return fmt.Sprintf(`Here is a user's query: %q

Here are the recent logs for %s %q:
%s

Based on the user's query and the provided logs, provide a detailed solution or set of recommendations in a numbered list format. Focus on:
1. Identifying any relevant information in the logs related to the query.
2. Explaining how this information relates to the query.
3. Proposing concrete, actionable steps to address the user's concern. If the logs don't directly address the query, provide general but detailed best practices for the mentioned topics.

Your response should be comprehensive, easy to understand, and clearly numbered for each recommendation.`, topic, svc.Category, svc.Name, logs)
}

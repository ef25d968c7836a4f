// Package message turns a run outcome into the single status text sent to
// the notification channel.
package message

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ibeckermayer/renewbot/internal/types"
)

// Data is the template input.
type Data struct {
	Site      string
	MachineID string
	DaysLeft  int
	Error     string
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
}

// Builder renders messages from one template per outcome.
type Builder struct {
	site      string
	templates *template.Template
}

// New parses the outcome templates. site names the panel in login messages.
func New(site string) (*Builder, error) {
	tmpl := template.New("message").Funcs(template.FuncMap{"md": EscapeMarkdown})
	for outcome, text := range templates {
		if _, err := tmpl.New(string(outcome)).Parse(text); err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", outcome, err)
		}
	}
	return &Builder{site: site, templates: tmpl}, nil
}

// Build renders the message for outcome. Outcomes without a template render
// as a top-level error.
func (b *Builder) Build(outcome types.Outcome, data Data) (Message, error) {
	if data.Site == "" {
		data.Site = b.site
	}
	name := string(outcome)
	if b.templates.Lookup(name) == nil {
		name = string(types.OutcomeFailed)
		if data.Error == "" {
			data.Error = fmt.Sprintf("unknown outcome %q", outcome)
		}
	}

	var buf bytes.Buffer
	if err := b.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("failed to render template: %w", err)
	}

	subject := fmt.Sprintf("[renewbot] %s", outcome)
	if data.MachineID != "" {
		subject = fmt.Sprintf("[renewbot] %s: %s", data.MachineID, outcome)
	}
	return Message{Subject: subject, Text: buf.String()}, nil
}

// EscapeMarkdown escapes the characters that Telegram's legacy Markdown mode
// treats as entity delimiters.
func EscapeMarkdown(s string) string {
	return markdown.Replace(s)
}

var markdown = strings.NewReplacer(`\`, `\\`, "_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

var templates = map[types.Outcome]string{
	types.OutcomeSuccess:                "✅ 浏览器自动化: 服务器 {{md .MachineID}} 续费成功！原剩余: {{.DaysLeft}} 天。",
	types.OutcomeUncertain:              "⚠️ 浏览器自动化: 服务器 {{md .MachineID}} 续费操作已提交，但结果不确定。请手动检查。原剩余: {{.DaysLeft}} 天。",
	types.OutcomeRenewControlNotFound:   "❓ 浏览器自动化: 服务器 {{md .MachineID}} 找不到续费按钮。请手动续费。剩余: {{.DaysLeft}} 天。",
	types.OutcomeConfirmControlNotFound: "❓ 浏览器自动化: 服务器 {{md .MachineID}} 找不到续费确认按钮。请手动续费。剩余: {{.DaysLeft}} 天。",
	types.OutcomeNotNeeded:              "ℹ️ 浏览器自动化: 服务器 {{md .MachineID}} 剩余 {{.DaysLeft}} 天，无需续费。",
	types.OutcomeInfoNotFound:           "⚠️ 浏览器自动化: 未能找到服务器 {{md .MachineID}} 的信息，无法续费。",
	types.OutcomeFormNotFound:           "❌ 浏览器自动化失败: 无法访问登录页面或找不到登录表单",
	types.OutcomeLoginFailed:            "🔴 浏览器自动化: 登录{{md .Site}}失败，无法续费。",
	types.OutcomeNavigationFailed:       "🔴 浏览器自动化: 提交{{md .Site}}登录表单失败，无法续费。",
	types.OutcomeFailed:                 "❌ 浏览器自动化: 过程中发生错误: {{md .Error}}",
}

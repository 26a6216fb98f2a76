// internal/payload/builder.go
package payload

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/waflowhq/waflow-backend/internal/model"
)

// GatewayPayload is the queue message consumed by the gateway worker. Exactly
// one of the template family (templateName/templateLanguage/templateParameters)
// or the direct family (messageType + content/media) is populated.
type GatewayPayload struct {
	OrganizationID     int64    `json:"organizationId"`
	To                 string   `json:"to"`
	CampaignID         int64    `json:"campaignId,omitempty"`
	CampaignAudienceID int64    `json:"campaignAudienceId,omitempty"`

	TemplateName       string   `json:"templateName,omitempty"`
	TemplateLanguage   string   `json:"templateLanguage,omitempty"`
	TemplateParameters []string `json:"templateParameters,omitempty"`

	MessageType    string `json:"messageType,omitempty"`
	MessageContent string `json:"messageContent,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	Caption        string `json:"caption,omitempty"`

	IsAutoReply         bool   `json:"is_auto_reply,omitempty"`
	OriginalMessageID   string `json:"originalMessageId,omitempty"`
	AutoReplyTemplateID int64  `json:"autoReplyTemplateId,omitempty"`
	ContextMessageID    string `json:"contextMessageId,omitempty"`
}

var (
	numberedPlaceholder = regexp.MustCompile(`\{\{(\d+)\}\}`)
	namedPlaceholder    = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
)

// Build turns a template and a recipient into a gateway-ready payload. It is a
// pure function: no I/O, and it never fails on missing recipient data; every
// unresolved placeholder degrades to a fallback value instead.
func Build(tpl *model.Template, rec *model.CampaignAudience) *GatewayPayload {
	p := &GatewayPayload{
		OrganizationID:     rec.OrganizationID,
		To:                 rec.MSISDN,
		CampaignID:         rec.CampaignID,
		CampaignAudienceID: rec.ID,
	}

	if tpl.Kind == model.TemplateKindTemplate {
		p.TemplateName = tpl.Name
		p.TemplateLanguage = tpl.Language
		p.TemplateParameters = resolveNumberedParams(tpl, rec)
		return p
	}

	p.MessageType = tpl.Kind
	p.MessageContent = substituteNamed(tpl.BodyText, rec)
	p.MediaURL = substituteNamed(tpl.MediaURL, rec)
	p.Caption = substituteNamed(tpl.Caption, rec)

	// A per-recipient generated asset replaces the template's shared media.
	if rec.AssetURL != "" && p.MessageType != model.TemplateKindText {
		p.MediaURL = rec.AssetURL
	}
	return p
}

// resolveNumberedParams walks the template components for numbered body
// placeholders and resolves each in order. Resolution tries the template's
// declared parameter-to-attribute mapping first, then the generic attr_n /
// body_param_n keys, and finally falls back to the placeholder literal so a
// sparse attribute map still yields a sendable payload.
func resolveNumberedParams(tpl *model.Template, rec *model.CampaignAudience) []string {
	body := tpl.BodyComponent()
	matches := numberedPlaceholder.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return []string{}
	}

	seen := map[int]bool{}
	var numbers []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	params := make([]string, 0, len(numbers))
	for _, n := range numbers {
		params = append(params, resolveParam(tpl, rec, n))
	}
	return params
}

func resolveParam(tpl *model.Template, rec *model.CampaignAudience, n int) string {
	key := strconv.Itoa(n)

	if attr, ok := tpl.ParameterMapping.GetString(key); ok && attr != "" {
		if v, ok := lookupAttribute(rec, attr); ok {
			return v
		}
	}
	if v, ok := rec.Attributes.GetString(fmt.Sprintf("attr_%d", n)); ok {
		return v
	}
	if v, ok := rec.Attributes.GetString(fmt.Sprintf("body_param_%d", n)); ok {
		return v
	}
	return fmt.Sprintf("{{%d}}", n)
}

// substituteNamed replaces {{name}}, {{phone}} and {{attribute}} placeholders
// in text, caption and media-URL strings. Placeholders that resolve to nothing
// are left verbatim.
func substituteNamed(text string, rec *model.CampaignAudience) string {
	if text == "" {
		return text
	}
	return namedPlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.Trim(match, "{}")
		if v, ok := lookupAttribute(rec, key); ok {
			return v
		}
		return match
	})
}

func lookupAttribute(rec *model.CampaignAudience, key string) (string, bool) {
	switch key {
	case "name":
		if rec.Name != "" {
			return rec.Name, true
		}
	case "phone":
		if rec.MSISDN != "" {
			return rec.MSISDN, true
		}
	}
	if v, ok := rec.Attributes.GetString(key); ok && v != "" {
		return v, true
	}
	return "", false
}

// Validate is the gate every payload passes before enqueue: a destination and
// exactly one fully populated message family.
func Validate(p *GatewayPayload) bool {
	if p == nil || strings.TrimSpace(p.To) == "" {
		return false
	}

	hasTemplate := p.TemplateName != "" && p.TemplateLanguage != "" && p.TemplateParameters != nil
	hasDirect := p.MessageType != ""

	if hasTemplate == hasDirect {
		return false
	}
	if hasTemplate {
		return true
	}

	switch p.MessageType {
	case model.TemplateKindText:
		return p.MessageContent != ""
	case model.TemplateKindImage, model.TemplateKindVideo, model.TemplateKindDocument:
		return p.MediaURL != ""
	}
	return false
}

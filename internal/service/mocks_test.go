// internal/service/mocks_test.go
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// In-memory fakes for the repository interfaces. They reproduce the semantics
// the services rely on (monotonic status transitions, claim-and-flip retries,
// duplicate detection) without a database.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	nextID    int64
	campaigns map[int64]*model.Campaign
	refreshed map[int64]int
	getErr    error
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[int64]*model.Campaign{}, refreshed: map[int64]int{}}
}

func (r *fakeCampaignRepo) add(c *model.Campaign) *model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	} else if c.ID > r.nextID {
		r.nextID = c.ID
	}
	r.campaigns[c.ID] = c
	return c
}

func (r *fakeCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CreatedAt = time.Now()
	r.add(c)
	return nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, filter repository.CampaignFilter) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Campaign
	for _, c := range r.campaigns {
		if filter.OrganizationID != 0 && c.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *fakeCampaignRepo) ListDue(_ context.Context, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var due []*model.Campaign
	for _, c := range r.campaigns {
		eligible := c.Status == model.CampaignStatusApproved ||
			c.Status == model.CampaignStatusReadyToLaunch ||
			c.Status == model.CampaignStatusRunning
		if eligible && c.DispatchDue(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeCampaignRepo) UpdateStatus(_ context.Context, campaignID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok {
		c.Status = status
	}
	return nil
}

func (r *fakeCampaignRepo) UpdateStatusIf(_ context.Context, campaignID int64, from []string, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCampaignRepo) RefreshCounters(_ context.Context, campaignID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed[campaignID]++
	return nil
}

func (r *fakeCampaignRepo) status(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].Status
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

type fakeAudienceRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.CampaignAudience
	master map[string]*model.AudienceMaster
}

func newFakeAudienceRepo() *fakeAudienceRepo {
	return &fakeAudienceRepo{rows: map[int64]*model.CampaignAudience{}, master: map[string]*model.AudienceMaster{}}
}

func (r *fakeAudienceRepo) add(a *model.CampaignAudience) *model.CampaignAudience {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == 0 {
		r.nextID++
		a.ID = r.nextID
	} else if a.ID > r.nextID {
		r.nextID = a.ID
	}
	if a.MessageStatus == "" {
		a.MessageStatus = model.MessageStatusPending
	}
	r.rows[a.ID] = a
	return a
}

func (r *fakeAudienceRepo) BulkAdd(_ context.Context, campaignID, orgID int64, contacts []*model.CampaignAudience) ([]*model.CampaignAudience, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var added []*model.CampaignAudience
	var duplicates []string
	for _, c := range contacts {
		dup := false
		for _, existing := range r.rows {
			if existing.CampaignID == campaignID && existing.MSISDN == c.MSISDN {
				dup = true
				break
			}
		}
		if dup {
			duplicates = append(duplicates, c.MSISDN)
			continue
		}
		r.nextID++
		c.ID = r.nextID
		c.CampaignID = campaignID
		c.OrganizationID = orgID
		if c.MessageStatus == "" {
			c.MessageStatus = model.MessageStatusPending
		}
		c.CreatedAt = time.Now()
		r.rows[c.ID] = c
		r.master[c.MSISDN] = &model.AudienceMaster{OrganizationID: orgID, Name: c.Name, MSISDN: c.MSISDN, Attributes: c.Attributes}
		added = append(added, c)
	}
	return added, duplicates, nil
}

func (r *fakeAudienceRepo) GetByID(_ context.Context, id int64) (*model.CampaignAudience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAudienceRepo) FindByMessageID(_ context.Context, messageID string) (*model.CampaignAudience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.MessageID == messageID && messageID != "" {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAudienceRepo) FindByCampaignAndPhone(_ context.Context, campaignID int64, variants []string) (*model.CampaignAudience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.CampaignID != campaignID {
			continue
		}
		for _, v := range variants {
			if a.MSISDN == v {
				cp := *a
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeAudienceRepo) ListDispatchable(_ context.Context, campaignID, afterID int64, limit int) ([]*model.CampaignAudience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CampaignAudience
	for _, a := range r.rows {
		if a.CampaignID != campaignID || a.ID <= afterID {
			continue
		}
		switch a.MessageStatus {
		case model.MessageStatusPending, model.MessageStatusAssetGenerated, model.MessageStatusReadyToSend:
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAudienceRepo) CountOpen(_ context.Context, campaignID int64, maxRetries int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.rows {
		if a.CampaignID == campaignID && !a.Terminal(maxRetries) {
			n++
		}
	}
	return n, nil
}

func (r *fakeAudienceRepo) RemoveFromCampaign(_ context.Context, campaignID int64, msisdn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.rows {
		if a.CampaignID == campaignID && a.MSISDN == msisdn {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *fakeAudienceRepo) UpdateStatus(_ context.Context, id int64, status, failureReason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	now := time.Now()
	if status == model.MessageStatusFailed {
		for _, s := range model.NonTerminalStatuses() {
			if a.MessageStatus == s {
				a.MessageStatus = status
				a.FailureReason = failureReason
				a.FailedAt = &now
				return true, nil
			}
		}
		return false, nil
	}
	target, ok := model.MessageStatusRank(status)
	if !ok {
		return false, nil
	}
	current, ok := model.MessageStatusRank(a.MessageStatus)
	if !ok || current >= target {
		return false, nil
	}
	a.MessageStatus = status
	switch status {
	case model.MessageStatusSent:
		a.SentAt = &now
	case model.MessageStatusDelivered:
		a.DeliveredAt = &now
	case model.MessageStatusRead:
		a.ReadAt = &now
	}
	return true, nil
}

func (r *fakeAudienceRepo) SetMessageID(_ context.Context, id int64, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; ok {
		a.MessageID = messageID
	}
	return nil
}

func (r *fakeAudienceRepo) ClaimRetryable(_ context.Context, maxRetries int, failedBefore time.Time, limit int) ([]*model.CampaignAudience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var claimed []*model.CampaignAudience
	var ids []int64
	for id := range r.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a := r.rows[id]
		if a.MessageStatus != model.MessageStatusFailed || a.RetryCount >= maxRetries {
			continue
		}
		if a.FailedAt == nil || a.FailedAt.After(failedBefore) {
			continue
		}
		a.MessageStatus = model.MessageStatusPending
		a.RetryCount++
		a.FailureReason = ""
		cp := *a
		claimed = append(claimed, &cp)
		if len(claimed) == limit {
			break
		}
	}
	return claimed, nil
}

func (r *fakeAudienceRepo) ReleaseRetryClaim(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		a, ok := r.rows[id]
		if !ok || a.MessageStatus != model.MessageStatusPending {
			continue
		}
		a.MessageStatus = model.MessageStatusFailed
		if a.RetryCount > 0 {
			a.RetryCount--
		}
	}
	return nil
}

func (r *fakeAudienceRepo) UpsertMaster(_ context.Context, m *model.AudienceMaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.master[m.MSISDN]; ok {
		existing.Name = m.Name
		existing.Attributes = existing.Attributes.Merge(m.Attributes)
		return nil
	}
	r.master[m.MSISDN] = m
	return nil
}

func (r *fakeAudienceRepo) status(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].MessageStatus
}

func (r *fakeAudienceRepo) row(id int64) model.CampaignAudience {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

var _ repository.AudienceRepositoryInterface = (*fakeAudienceRepo)(nil)

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[int64]*model.Template
}

func newFakeTemplateRepo(templates ...*model.Template) *fakeTemplateRepo {
	r := &fakeTemplateRepo{templates: map[int64]*model.Template{}}
	for _, t := range templates {
		r.templates[t.ID] = t
	}
	return r
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id int64) (*model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	cp := *t
	return &cp, nil
}

var _ repository.TemplateRepositoryInterface = (*fakeTemplateRepo)(nil)

type fakeOrgRepo struct {
	orgs map[int64]*model.Organization
}

func newFakeOrgRepo(orgs ...*model.Organization) *fakeOrgRepo {
	r := &fakeOrgRepo{orgs: map[int64]*model.Organization{}}
	for _, o := range orgs {
		r.orgs[o.ID] = o
	}
	return r
}

func (r *fakeOrgRepo) GetByID(_ context.Context, id int64) (*model.Organization, error) {
	o, ok := r.orgs[id]
	if !ok {
		return nil, nil
	}
	return o, nil
}

var _ repository.OrganizationRepositoryInterface = (*fakeOrgRepo)(nil)

type fakeEventRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*model.WebhookEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[int64]*model.WebhookEvent{}}
}

func (r *fakeEventRepo) Insert(_ context.Context, ev *model.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ev.ID = r.nextID
	ev.ReceivedAt = time.Now()
	r.events[ev.ID] = ev
	return nil
}

func (r *fakeEventRepo) MarkProcessed(_ context.Context, id int64, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[id]; ok {
		ev.Processed = true
		ev.ErrorMessage = errorMessage
	}
	return nil
}

func (r *fakeEventRepo) LinkAudience(_ context.Context, id, campaignID, audienceID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[id]; ok {
		ev.CampaignID = &campaignID
		ev.CampaignAudienceID = &audienceID
	}
	return nil
}

func (r *fakeEventRepo) FindUnprocessed(_ context.Context, limit int) ([]*model.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookEvent
	for _, ev := range r.events {
		if !ev.Processed {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEventRepo) FindByOrganization(_ context.Context, orgID int64, offset, limit int) ([]*model.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookEvent
	for _, ev := range r.events {
		if ev.OrganizationID == orgID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEventRepo) GetStatistics(_ context.Context, orgID int64) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{}
	for _, ev := range r.events {
		if ev.OrganizationID != orgID {
			continue
		}
		stats[ev.EventType]++
		stats["total"]++
		if !ev.Processed {
			stats["unprocessed"]++
		}
		if ev.ErrorMessage != "" {
			stats["correlation_errors"]++
		}
	}
	return stats, nil
}

func (r *fakeEventRepo) event(id int64) model.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.events[id]
}

var _ repository.WebhookEventRepositoryInterface = (*fakeEventRepo)(nil)

type fakeIncomingRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*model.IncomingMessage
}

func newFakeIncomingRepo() *fakeIncomingRepo {
	return &fakeIncomingRepo{messages: map[int64]*model.IncomingMessage{}}
}

func (r *fakeIncomingRepo) add(m *model.IncomingMessage) *model.IncomingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	r.messages[m.ID] = m
	return m
}

func (r *fakeIncomingRepo) Insert(_ context.Context, msg *model.IncomingMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.messages {
		if existing.MessageID == msg.MessageID {
			return false, nil
		}
	}
	r.nextID++
	msg.ID = r.nextID
	msg.ReceivedAt = time.Now()
	r.messages[msg.ID] = msg
	return true, nil
}

func (r *fakeIncomingRepo) GetByMessageID(_ context.Context, messageID string) (*model.IncomingMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.MessageID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeIncomingRepo) FindPendingAutoReply(_ context.Context, limit int) ([]*model.IncomingMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.IncomingMessage
	for _, m := range r.messages {
		if m.IsAutoReply && m.SendAutoReply == model.AutoReplyPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeIncomingRepo) MarkAutoReply(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.SendAutoReply = status
		m.Processed = true
	}
	return nil
}

func (r *fakeIncomingRepo) MarkProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Processed = true
	}
	return nil
}

func (r *fakeIncomingRepo) message(id int64) model.IncomingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.messages[id]
}

var _ repository.IncomingMessageRepositoryInterface = (*fakeIncomingRepo)(nil)

package content

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

func headers(m map[string]string) func(string) string {
	return func(name string) string { return m[name] }
}

func TestIsUrgent(t *testing.T) {
	assert.True(t, IsUrgent("URGENT: server down", "", nil))
	assert.True(t, IsUrgent("Spoed: factuur", "", nil))
	assert.True(t, IsUrgent("need this asap please", "", nil))
	assert.True(t, IsUrgent("Spoedbestelling nodig", "", nil))
	assert.True(t, IsUrgent("urgently needed", "", nil))
	assert.True(t, IsUrgent("CRITICALLY broken", "", nil))
	assert.True(t, IsUrgent("Dringende Anfrage", "", nil))
	assert.True(t, IsUrgent("Question", "High", nil))
	assert.True(t, IsUrgent("Question", "", headers(map[string]string{"X-Priority": "1 (Highest)"})))
	assert.True(t, IsUrgent("Question", "", headers(map[string]string{"X-Priority": "2"})))
	assert.True(t, IsUrgent("Question", "", headers(map[string]string{"Importance": "high"})))

	assert.False(t, IsUrgent("Question", "normal", headers(map[string]string{"X-Priority": "3"})))
	assert.False(t, IsUrgent("Printer makes a noise", "", nil))
	assert.False(t, IsUrgent("", "", nil))
}

func TestSelectUrgentPriority(t *testing.T) {
	assert.Nil(t, SelectUrgentPriority(nil))

	ps := []domain.Priority{
		{ID: 1, Slug: "low", SortOrder: 4},
		{ID: 2, Slug: "high", SortOrder: 2},
		{ID: 3, Slug: "urgent", SortOrder: 3},
	}
	assert.Equal(t, int64(3), SelectUrgentPriority(ps).ID)
	assert.Equal(t, int64(2), SelectUrgentPriority(ps[:2]).ID)

	custom := []domain.Priority{
		{ID: 7, Slug: "p3", SortOrder: 30},
		{ID: 8, Slug: "p1", SortOrder: 10},
	}
	assert.Equal(t, int64(8), SelectUrgentPriority(custom).ID)
}

func TestNormalizeSubject(t *testing.T) {
	assert.Equal(t, "Invoice 42", NormalizeSubject("RE: Fwd: AW: Invoice 42"))
	assert.Equal(t, "Invoice 42", NormalizeSubject("Re[2]: Invoice 42"))
	assert.Equal(t, "Vraag", NormalizeSubject("Antw: WG: Vraag"))
	assert.Equal(t, "Resolution: pending", NormalizeSubject("Resolution: pending"))
	assert.Equal(t, "", NormalizeSubject("Re: "))
}

func TestRewriteCIDs(t *testing.T) {
	raw := `<p>Logo</p><img src="cid:logo@x" alt="logo"><img src='<cid:other>'>`
	out := RewriteCIDs(raw, map[string]string{"logo@x": "https://files.example.com/storage/a.png"})
	assert.Contains(t, out, `src="https://files.example.com/storage/a.png"`)
	assert.Equal(t, raw, RewriteCIDs(raw, nil))
	assert.Equal(t, "logo@x", NormalizeContentID(" <logo@x> "))
}

func TestNormalizeReplyStripsQuotes(t *testing.T) {
	n := NewNormalizer(nil, internalOnly)
	out := n.Normalize(Input{
		PlainBody: "Thanks!\n\nOn Mon, Bob wrote:\n> old",
		HTMLBody:  `<div>Thanks!</div><div class="gmail_quote">old</div>`,
		Subject:   "Re: URGENT outage",
		IsReply:   true,
	})
	assert.Equal(t, "Thanks!", out.PlainBody)
	assert.Equal(t, "<div>Thanks!</div>", out.SanitizedHTML)
	assert.True(t, out.IsUrgent)
}

func TestNormalizeFirstMessageKeepsQuotes(t *testing.T) {
	n := NewNormalizer(nil, nil)
	body := "Forwarding this:\n\nOn Mon, Bob wrote:\n> original problem"
	out := n.Normalize(Input{PlainBody: body})
	assert.Equal(t, body, out.PlainBody)
	assert.False(t, out.IsUrgent)
}

func TestNormalizeDerivesPlainFromHTML(t *testing.T) {
	n := NewNormalizer(nil, nil)
	out := n.Normalize(Input{
		HTMLBody: "<html><head><style>p{}</style></head><body><p>Hello&nbsp;there</p><script>x()</script><p>Second &amp; last</p></body></html>",
	})
	assert.Equal(t, "Hello there\n\nSecond & last", out.PlainBody)
}

func TestNormalizeDecodesAttachments(t *testing.T) {
	n := NewNormalizer(nil, nil)
	out := n.Normalize(Input{
		PlainBody: "see attached",
		Attachments: []domain.InboundAttachment{
			{Filename: "a.txt", ContentType: "text/plain", Content: base64.StdEncoding.EncodeToString([]byte("hello"))},
			{Filename: "broken.bin", Content: "!!!not base64!!!"},
			{Filename: "remote.png", URL: "https://cdn.example/x.png"},
			{Filename: "logo.png", ContentType: "image/png", ContentID: "<logo@x>", IsInline: true, Content: "aGk="},
		},
	})
	require.Len(t, out.Attachments, 2)
	assert.Equal(t, "hello", string(out.Attachments[0].Data))
	assert.Equal(t, "logo@x", out.Attachments[1].ContentID)
	assert.True(t, out.Attachments[1].IsInline)
}

func TestRenderHTMLResolvesInlineImages(t *testing.T) {
	n := NewNormalizer(nil, internalOnly)
	raw := `<p>Logo</p><img src="cid:logo@x" alt="logo">`
	src := storageBase + "tenants/1/tickets/2/u.png"

	out := n.RenderHTML(raw, false, map[string]string{"logo@x": src})
	assert.Contains(t, out, `src="`+src+`"`)
	assert.Contains(t, out, InlineImageClass)

	unresolved := n.RenderHTML(raw, false, nil)
	assert.Contains(t, unresolved, "[Image: logo]")
	assert.NotContains(t, unresolved, "cid:")
}

package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripQuotedText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "english attribution",
			in:   "Thanks, that fixed it.\n\nOn Mon, 3 Jun 2024 at 10:00, Support <support@x.com> wrote:\n> Did you try restarting?\n> Regards",
			want: "Thanks, that fixed it.",
		},
		{
			name: "dutch attribution",
			in:   "Bedankt!\n\nOp 3 juni 2024 schreef Jan:\n> vraag",
			want: "Bedankt!",
		},
		{
			name: "wrapped attribution",
			in:   "Works now\n\nOn Mon, 3 Jun 2024 at 10:00, Support Team\n<support@x.com> wrote:\n> old",
			want: "Works now",
		},
		{
			name: "outlook header block and separator",
			in:   "Reply here\n-----Original Message-----\nFrom: Support\nSent: Monday\nSubject: Help\n\nold text",
			want: "Reply here",
		},
		{
			name: "dutch header block",
			in:   "Prima\n\nVan: Support\nVerzonden: maandag\nOnderwerp: Hulp\n\noud",
			want: "Prima",
		},
		{
			name: "underscore separator",
			in:   "See below\n________________________________\nolder thread",
			want: "See below",
		},
		{
			name: "trailing quote block",
			in:   "Yes please\n\n> Should we ship it?\n>\n> Thanks",
			want: "Yes please",
		},
		{
			name: "crlf input",
			in:   "Fine\r\n\r\nOn Tue, Bob wrote:\r\n> hi",
			want: "Fine",
		},
		{
			name: "no quote",
			in:   "Just a message\nwith two lines",
			want: "Just a message\nwith two lines",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripQuotedText(tt.in))
		})
	}
}

func TestStripQuotedTextKeepsLede(t *testing.T) {
	body := "> only quoted\n> text"
	assert.Equal(t, body, StripQuotedText(body))

	attribution := "On Monday, Alice wrote:\n> hi"
	assert.Equal(t, "On Monday, Alice wrote:", StripQuotedText(attribution))
}

func TestStripQuotedTextIdempotent(t *testing.T) {
	inputs := []string{
		"Thanks\n\nOn Mon, Bob wrote:\n> one\n>> two",
		"Reply\n-----Original Message-----\nFrom: a\nTo: b\n\nbody\n\nOn Sun, c wrote:\n> x",
		"A\n--\nSig\n> quoted",
		"plain",
	}
	for _, in := range inputs {
		once := StripQuotedText(in)
		assert.Equal(t, once, StripQuotedText(once), in)
	}
}

func TestStripQuotedHTML(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		keep    string
		dropped string
	}{
		{
			name:    "gmail",
			in:      `<div>Thanks!</div><div class="gmail_quote"><div>On Mon, Bob wrote:</div><blockquote>old</blockquote></div>`,
			keep:    "Thanks!",
			dropped: "old",
		},
		{
			name:    "outlook desktop",
			in:      `<p>New reply</p><hr><div id="divRplyFwdMsg">From: x</div><div>old body</div>`,
			keep:    "New reply",
			dropped: "old body",
		},
		{
			name:    "outlook mobile",
			in:      `<div><p>Sure</p><div id="mail-editor-reference-message-container"><p>earlier</p></div></div>`,
			keep:    "Sure",
			dropped: "earlier",
		},
		{
			name:    "yahoo",
			in:      `<div>Ok</div><div class="yahoo_quoted">quoted yahoo</div>`,
			keep:    "Ok",
			dropped: "quoted yahoo",
		},
		{
			name:    "trailing blockquote",
			in:      `<p>Sounds good</p><blockquote>previous</blockquote>`,
			keep:    "Sounds good",
			dropped: "previous",
		},
		{
			name:    "nested container truncates following siblings",
			in:      `<div><p>Top</p><div class="gmail_quote">q</div><p>after</p></div><p>tail</p>`,
			keep:    "Top",
			dropped: "tail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := StripQuotedHTML(tt.in)
			assert.Contains(t, out, tt.keep)
			assert.NotContains(t, out, tt.dropped)
			assert.Equal(t, out, StripQuotedHTML(out))
		})
	}
}

func TestStripQuotedHTMLKeepsLede(t *testing.T) {
	in := `<blockquote>only a quote</blockquote>`
	assert.Equal(t, in, StripQuotedHTML(in))

	inline := `<p>See <blockquote>this</blockquote> and reply</p>`
	assert.Contains(t, StripQuotedHTML(inline), "this")
}

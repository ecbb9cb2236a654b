package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodyStripsQuotesAndSignature(t *testing.T) {
	body := "Please fund the account.\n" +
		"> On Monday you wrote:\n" +
		"> something quoted\n" +
		"--\n" +
		"Jane Doe\nFinancial Controller\n"

	got := Body(body)
	assert.Equal(t, "Please fund the account. On Monday you wrote: something quoted", got)
}

func TestBodyStripsMobileFooter(t *testing.T) {
	got := Body("Approved.\nSent from my iPhone\n")
	assert.Equal(t, "Approved.", got)
}

func TestBodyEmpty(t *testing.T) {
	assert.Equal(t, "", Body(""))
	assert.Equal(t, "", Body("   \n\t"))
}

func TestSubjectStripsReplyPrefixes(t *testing.T) {
	assert.Equal(t, "Funding request", Subject("Re: Funding request"))
	assert.Equal(t, "Funding request", Subject("RE: FWD: Fw: Funding request"))
	assert.Equal(t, "Funding request", Subject("Funding   request"))
}

func TestAddressUnwrapsDisplayName(t *testing.T) {
	assert.Equal(t, "ops@client.example.com", Address("Operations Team <Ops@Client.Example.Com>"))
	assert.Equal(t, "ops@client.example.com", Address("ops@client.example.com"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "client.example.com", Domain("Ops <ops@client.example.com>"))
	assert.Equal(t, "", Domain("not-an-address"))
}

func TestAddressSet(t *testing.T) {
	set := AddressSet("a@x.com, B@X.com , ,c@y.com")
	assert.Len(t, set, 3)
	_, ok := set["b@x.com"]
	assert.True(t, ok)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"fund", "usd", "50", "000"}, Tokens("Fund USD 50,000!"))
	assert.Empty(t, Tokens("  ...  "))
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailPageHTML = `<!DOCTYPE html>
<html>
<body>
	<div class="auto-content">
		<h1 class="head">Audi Q7 2019</h1>
		<div class="price_value"><strong>25 500 $</strong></div>
		<div class="base-information">
			<span class="size18">95</span> <span>тис. км</span>
		</div>
		<div class="seller_info_name">Олександр</div>
		<span class="phone" data-phone-number="(097) 123 45 67">(097) 123 45 67</span>
		<div class="gallery-order carousel">
			<picture>
				<source srcset="https://cdn.riastatic.com/photos/auto/q7__001.webp 1x, https://cdn.riastatic.com/photos/auto/q7__001@2x.webp 2x">
				<img class="outline" src="https://cdn.riastatic.com/photos/auto/q7__001.jpg">
			</picture>
		</div>
		<div class="preview-gallery">
			<ul>
				<li></li><li></li><li></li><li></li>
			</ul>
		</div>
		<span class="state-num ua">AA 1234 BB<span class="popup">Ми перевірили номер</span></span>
		<span class="label-vin">WAUZZZ4M0KD018683</span>
	</div>
</body>
</html>`

func TestParseDetailPage(t *testing.T) {
	p := NewAutoRiaParser()

	listing, err := p.ParseDetailPage([]byte(detailPageHTML), "https://auto.ria.com/uk/auto_audi_q7_123.html")
	require.NoError(t, err)

	assert.Equal(t, "https://auto.ria.com/uk/auto_audi_q7_123.html", listing.URL)
	assert.Equal(t, "Audi Q7 2019", listing.Title)

	require.NotNil(t, listing.PriceUSD)
	assert.Equal(t, 25500, *listing.PriceUSD)

	require.NotNil(t, listing.Odometer)
	assert.Equal(t, 95000, *listing.Odometer)

	require.NotNil(t, listing.Username)
	assert.Equal(t, "Олександр", *listing.Username)

	require.NotNil(t, listing.PhoneNumber)
	assert.Equal(t, int64(971234567), *listing.PhoneNumber)

	require.NotNil(t, listing.ImageURL)
	assert.Equal(t, "https://cdn.riastatic.com/photos/auto/q7__001.webp", *listing.ImageURL)

	assert.Equal(t, 4, listing.ImagesCount)

	require.NotNil(t, listing.CarNumber)
	assert.Equal(t, "AA 1234 BB", *listing.CarNumber)

	require.NotNil(t, listing.CarVIN)
	assert.Equal(t, "WAUZZZ4M0KD018683", *listing.CarVIN)

	assert.False(t, listing.FoundAt.IsZero())
}

func TestParseDetailPageRequiredFields(t *testing.T) {
	p := NewAutoRiaParser()

	t.Run("missing title", func(t *testing.T) {
		_, err := p.ParseDetailPage([]byte(`<html><body><div class="price_value">100 $</div></body></html>`),
			"https://auto.ria.com/uk/auto_test_1.html")

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, KindMissingRequired, parseErr.Kind)
		assert.Equal(t, "title", parseErr.Field)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := p.ParseDetailPage([]byte(detailPageHTML), "")

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, KindMissingRequired, parseErr.Kind)
		assert.Equal(t, "url", parseErr.Field)
	})
}

func TestParseDetailPageOptionalFieldsDegrade(t *testing.T) {
	p := NewAutoRiaParser()

	tests := []struct {
		name string
		html string
	}{
		{
			name: "bare title only",
			html: `<html><body><h1 class="head">ВАЗ 2106</h1></body></html>`,
		},
		{
			name: "unparsable numbers",
			html: `<html><body>
				<h1 class="head">ВАЗ 2106</h1>
				<div class="price_value"><strong>договірна</strong></div>
				<div class="base-information"><span class="size18">не вказано</span></div>
				<span class="phone">номер прихований</span>
			</body></html>`,
		},
		{
			name: "masked phone",
			html: `<html><body>
				<h1 class="head">ВАЗ 2106</h1>
				<span class="phone">(067) xxх xx xx</span>
			</body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := p.ParseDetailPage([]byte(tt.html), "https://auto.ria.com/uk/auto_vaz_1.html")
			require.NoError(t, err)

			assert.Equal(t, "ВАЗ 2106", listing.Title)
			assert.Nil(t, listing.PriceUSD)
			assert.Nil(t, listing.Odometer)
			assert.Nil(t, listing.PhoneNumber)
			assert.Nil(t, listing.ImageURL)
			assert.Nil(t, listing.CarNumber)
			assert.Nil(t, listing.CarVIN)
			assert.Equal(t, 0, listing.ImagesCount)
			assert.Empty(t, listing.Validate())
		})
	}
}

func TestParseListingPage(t *testing.T) {
	p := NewAutoRiaParser()

	html := `<html><body>
		<div class="content-bar"><a class="m-link-ticket" href="/uk/auto_audi_q7_1.html"></a></div>
		<div class="content-bar"><a class="m-link-ticket" href="https://auto.ria.com/uk/auto_bmw_x5_2.html"></a></div>
		<div class="content-bar"><a class="m-link-ticket" href="/uk/auto_vw_golf_3.html"></a></div>
		<a class="js-next" href="/uk/search/?page=1"></a>
	</body></html>`

	page, err := p.ParseListingPage([]byte(html), "https://auto.ria.com/uk/search/?page=0")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://auto.ria.com/uk/auto_audi_q7_1.html",
		"https://auto.ria.com/uk/auto_bmw_x5_2.html",
		"https://auto.ria.com/uk/auto_vw_golf_3.html",
	}, page.ItemURLs)
	assert.True(t, page.HasMore())
	assert.Equal(t, "https://auto.ria.com/uk/search/?page=1", page.NextURL)
}

func TestParseListingPageEmpty(t *testing.T) {
	p := NewAutoRiaParser()

	page, err := p.ParseListingPage([]byte(`<html><body><div id="searchResults"></div></body></html>`),
		"https://auto.ria.com/uk/search/?page=5")
	require.NoError(t, err)

	assert.Empty(t, page.ItemURLs)
	assert.False(t, page.HasMore())
	assert.Empty(t, page.NextURL)
}

func TestExtractInt(t *testing.T) {
	p := NewAutoRiaParser()

	tests := []struct {
		name     string
		text     string
		expected *int
	}{
		{"plain", "25500", intPtr(25500)},
		{"space separated", "25 500 $", intPtr(25500)},
		{"nbsp separated", "25 500 $", intPtr(25500)},
		{"comma separated", "25,500 USD", intPtr(25500)},
		{"surrounding text", "ціна 7 999 $ (торг)", intPtr(7999)},
		{"no digits", "договірна", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.extractInt(tt.text)
			if tt.expected == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.expected, *got)
			}
		})
	}
}

func intPtr(v int) *int { return &v }

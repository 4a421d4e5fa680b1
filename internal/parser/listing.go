package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"autoria-scraper/internal/models"
)

// ErrorKind distinguishes a record that must be skipped because a required
// field is absent from input that could not be parsed at all.
type ErrorKind string

const (
	KindMissingRequired ErrorKind = "missing_required"
	KindMalformed       ErrorKind = "malformed"
)

type ParseError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Kind == KindMissingRequired {
		return fmt.Sprintf("parse: required field %q missing", e.Field)
	}
	return fmt.Sprintf("parse: malformed input: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AutoRiaParser extracts structured records from auto.ria.com pages. All
// methods are pure functions of the HTML body.
type AutoRiaParser struct {
	digitsPattern  *regexp.Regexp
	decimalPattern *regexp.Regexp
}

func NewAutoRiaParser() *AutoRiaParser {
	return &AutoRiaParser{
		digitsPattern:  regexp.MustCompile(`\d+`),
		decimalPattern: regexp.MustCompile(`\d+(?:[.,]\d+)?`),
	}
}

// ParseListingPage extracts the item URLs of one search-results page in
// document order, plus the href of the next-page link when present. Relative
// hrefs are resolved against baseURL.
func (p *AutoRiaParser) ParseListingPage(html []byte, baseURL string) (*models.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{Kind: KindMalformed, Err: err}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ParseError{Kind: KindMalformed, Err: err}
	}

	result := &models.PageResult{}

	doc.Find("div.content-bar a.m-link-ticket").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if abs := resolveURL(base, href); abs != "" {
			result.ItemURLs = append(result.ItemURLs, abs)
		}
	})

	if href, ok := doc.Find("a.js-next").First().Attr("href"); ok && href != "" {
		result.NextURL = resolveURL(base, href)
	}

	return result, nil
}

// ParseDetailPage extracts a Listing from one advert page. URL and title are
// required; every other field degrades to nil (or zero for ImagesCount) when
// it cannot be extracted.
func (p *AutoRiaParser) ParseDetailPage(html []byte, pageURL string) (*models.Listing, error) {
	if pageURL == "" {
		return nil, &ParseError{Kind: KindMissingRequired, Field: "url"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{Kind: KindMalformed, Err: err}
	}

	listing := models.NewListing(pageURL)

	listing.Title = firstText(doc, "h1.head", ".auto-content__title")
	if listing.Title == "" {
		return nil, &ParseError{Kind: KindMissingRequired, Field: "title"}
	}

	listing.PriceUSD = p.extractPrice(doc)
	listing.Odometer = p.extractOdometer(doc)
	listing.Username = p.extractUsername(doc)
	listing.PhoneNumber = p.extractPhone(doc)
	listing.ImageURL = p.extractMainImage(doc)
	listing.ImagesCount = p.extractImagesCount(doc)
	listing.CarNumber = p.extractCarNumber(doc)
	listing.CarVIN = p.extractVIN(doc)

	return listing, nil
}

func (p *AutoRiaParser) extractPrice(doc *goquery.Document) *int {
	text := firstText(doc, "div.price_value strong", "div.price_value", ".price_value")
	if text == "" {
		return nil
	}

	// Listings priced in UAH or EUR carry a USD conversion alongside.
	if !strings.Contains(text, "$") {
		if usd := firstText(doc, "span[data-currency='USD']"); usd != "" {
			text = usd
		}
	}

	return p.extractInt(text)
}

func (p *AutoRiaParser) extractOdometer(doc *goquery.Document) *int {
	text := firstText(doc, "div.base-information span.size18")
	if text == "" {
		doc.Find("div.base-information span").EachWithBreak(func(i int, s *goquery.Selection) bool {
			if strings.Contains(s.Text(), "тис") {
				text = s.Text()
				return false
			}
			return true
		})
	}
	if text == "" {
		return nil
	}

	// The page shows thousands of kilometers ("95 тис. км" means 95000 km).
	match := p.decimalPattern.FindString(text)
	if match == "" {
		return nil
	}

	thousands, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return nil
	}

	km := int(thousands * 1000)
	if km < 0 {
		return nil
	}
	return &km
}

func (p *AutoRiaParser) extractUsername(doc *goquery.Document) *string {
	name := firstText(doc, ".seller_info_name a", ".seller_info_name", "h4.seller_info_name")
	if name == "" {
		return nil
	}
	return &name
}

func (p *AutoRiaParser) extractPhone(doc *goquery.Document) *int64 {
	var text string

	phone := doc.Find("span.phone").First()
	if v, ok := phone.Attr("data-phone-number"); ok && v != "" {
		text = v
	} else {
		text = strings.TrimSpace(phone.Text())
	}
	// Numbers stay masked ("(067) xxx xx xx") until the reveal link is
	// clicked in a browser.
	if text == "" || strings.ContainsAny(text, "xXхХ") {
		return nil
	}

	digits := strings.Join(p.digitsPattern.FindAllString(text, -1), "")
	if digits == "" {
		return nil
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func (p *AutoRiaParser) extractMainImage(doc *goquery.Document) *string {
	if srcset, ok := doc.Find("div.gallery-order picture source").First().Attr("srcset"); ok {
		// srcset may list several candidates, the first URL is enough.
		if fields := strings.Fields(strings.Split(srcset, ",")[0]); len(fields) > 0 {
			return &fields[0]
		}
	}

	if src, ok := doc.Find("div.gallery-order img.outline").First().Attr("src"); ok && src != "" {
		return &src
	}

	return nil
}

func (p *AutoRiaParser) extractImagesCount(doc *goquery.Document) int {
	if n := doc.Find("div.preview-gallery ul li").Length(); n > 0 {
		return n
	}

	// "Дивитися всі 47 фотографій" link when the preview strip is collapsed.
	if text := firstText(doc, "a.show-all", "span.count"); text != "" {
		if v := p.extractInt(text); v != nil && *v >= 0 {
			return *v
		}
	}

	return 0
}

func (p *AutoRiaParser) extractCarNumber(doc *goquery.Document) *string {
	sel := doc.Find("span.state-num").First()
	if sel.Length() == 0 {
		return nil
	}

	// The badge nests a popup hint; only the element's own text is the plate.
	num := strings.TrimSpace(ownText(sel))
	if num == "" {
		return nil
	}
	return &num
}

func (p *AutoRiaParser) extractVIN(doc *goquery.Document) *string {
	vin := firstText(doc, "span.label-vin", "span.vin-code")
	if vin == "" {
		return nil
	}
	vin = strings.TrimSpace(strings.TrimSuffix(vin, "перевірений"))
	if vin == "" {
		return nil
	}
	return &vin
}

// extractInt pulls the first integer out of text that may carry currency
// symbols, thousands separators and surrounding words ("25 500 $").
func (p *AutoRiaParser) extractInt(text string) *int {
	cleaned := strings.NewReplacer(" ", "", " ", "", ",", "", ".", "").Replace(text)
	match := p.digitsPattern.FindString(cleaned)
	if match == "" {
		return nil
	}

	n, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &n
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// ownText returns the selection's direct text nodes, excluding children.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

package mailsync

import (
	"encoding/base64"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/utils"
)

var (
	standaloneCodePattern = regexp.MustCompile(`^\d{4,8}$|^\d{3,4}[ -]\d{3,4}$`)
	inlineCodePattern     = regexp.MustCompile(`\b\d{4,8}\b`)
	codeContextPattern    = regexp.MustCompile(`(?i)\b(code|otp|pin|passcode|one-time)\b`)
	codeSeparatorPattern  = regexp.MustCompile(`[ -]`)

	verificationLinkKeywords = []string{
		"verify", "verification", "confirm", "activate", "activation", "validate",
		"magic", "signin", "sign-in", "sign in", "login", "log-in", "log in", "one-time",
	}
)

// ExtractVerification walks the MIME tree of a message and collects
// verification codes and links from every text/html part. Children are
// visited before their container. The input is never modified.
func ExtractVerification(part *dto.MessagePart) dto.Verification {
	if part == nil {
		return dto.Verification{Codes: []string{}, Links: []string{}}
	}

	result := dto.Verification{Codes: []string{}, Links: []string{}}
	for _, child := range part.Parts {
		result = mergeVerification(result, ExtractVerification(child))
	}

	if isHTMLPart(part) {
		body, ok := decodePartData(part.Data)
		if ok {
			result = mergeVerification(result, extractFromHTML(body))
		}
	}

	return result
}

func mergeVerification(a, b dto.Verification) dto.Verification {
	return dto.Verification{
		Codes: utils.AppendUnique(append([]string{}, a.Codes...), b.Codes...),
		Links: utils.AppendUnique(append([]string{}, a.Links...), b.Links...),
	}
}

func isHTMLPart(part *dto.MessagePart) bool {
	mediaType, _, err := mime.ParseMediaType(part.MimeType)
	if err != nil {
		mediaType = strings.TrimSpace(part.MimeType)
	}
	return strings.EqualFold(mediaType, "text/html")
}

// Gmail bodies are base64url, padded or not depending on the endpoint.
func decodePartData(data string) (string, bool) {
	if data == "" {
		return "", false
	}
	trimmed := strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return "", false
		}
	}
	return string(decoded), true
}

func extractFromHTML(body string) dto.Verification {
	result := dto.Verification{Codes: []string{}, Links: []string{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return result
	}
	doc.Find("script, style, noscript, head").Remove()

	for _, node := range doc.Selection.Nodes {
		walkText(node, func(text string) {
			result.Codes = utils.AppendUnique(result.Codes, codesInText(text)...)
		})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if link, ok := verificationLink(href, s.Text()); ok {
			result.Links = utils.AppendUnique(result.Links, link)
		}
	})

	return result
}

func walkText(node *html.Node, visit func(string)) {
	if node.Type == html.TextNode {
		visit(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walkText(child, visit)
	}
}

func codesInText(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	if text == "" {
		return nil
	}
	if standaloneCodePattern.MatchString(text) {
		return []string{codeSeparatorPattern.ReplaceAllString(text, "")}
	}
	if codeContextPattern.MatchString(text) {
		return inlineCodePattern.FindAllString(text, -1)
	}
	return nil
}

func verificationLink(href, text string) (string, bool) {
	href = strings.TrimSpace(href)
	parsed, err := url.Parse(href)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", false
	}

	haystack := strings.ToLower(href + " " + strings.Join(strings.Fields(text), " "))
	for _, keyword := range verificationLinkKeywords {
		if strings.Contains(haystack, keyword) {
			return href, true
		}
	}
	return "", false
}

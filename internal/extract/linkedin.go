package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// profileSelectors are LinkedIn profile and feed containers, tried in order.
var profileSelectors = []string{
	".pv-text-details__left-panel",
	".pv-top-card-profile-picture__container + div",
	".text-heading-xlarge",
	".text-body-medium",
	".pv-shared-text-with-see-more",
	".pv-about-section",
	".pv-profile-section",
	".pv-experience-section",
	".pv-education-section",
	".feed-shared-update-v2",
	".share-update-card",
	".profile-section-card",
	`[data-field="experience_company"]`,
	`[data-field="experience_title"]`,
}

// profileFields are composed into labelled sections when no container matched.
var profileFields = []struct {
	label    string
	selector string
}{
	{"Name", ".text-heading-xlarge, .pv-text-details__left-panel h1"},
	{"Headline", ".text-body-medium.break-words, .pv-text-details__left-panel .text-body-medium"},
	{"About", ".pv-about-section .pv-shared-text-with-see-more, .pv-about__summary-text"},
}

var profileLists = []struct {
	label    string
	selector string
}{
	{"Experience", ".pv-experience-section .pv-entity__summary-info, .experience-item"},
	{"Education", ".pv-education-section .pv-entity__summary-info, .education-item"},
}

// IsLinkedInURL reports whether rawURL points at linkedin.com.
func IsLinkedInURL(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "linkedin.com")
}

type linkedInStrategy struct{}

// LinkedIn extracts profile content from rendered LinkedIn pages.
func LinkedIn() Strategy { return linkedInStrategy{} }

func (linkedInStrategy) Name() string { return "linkedin" }

func (linkedInStrategy) IsApplicable(src *Source) bool {
	return src.HTML != "" && IsLinkedInURL(src.URL)
}

func (linkedInStrategy) Extract(_ context.Context, src *Source) (string, error) {
	doc, err := parseHTML(src.HTML)
	if err != nil {
		return "", err
	}
	for _, sel := range profileSelectors {
		if text := innerText(doc.Find(sel).First()); text != "" {
			return text, nil
		}
	}
	if sections := profileSections(doc); len(sections) > 0 {
		return strings.Join(sections, "\n\n"), nil
	}
	return innerText(doc.Find("body")), nil
}

func profileSections(doc *goquery.Document) []string {
	var sections []string
	for _, f := range profileFields {
		if text := innerText(doc.Find(f.selector).First()); text != "" {
			sections = append(sections, f.label+": "+text)
		}
	}
	for _, l := range profileLists {
		doc.Find(l.selector).Each(func(i int, s *goquery.Selection) {
			if text := innerText(s); text != "" {
				sections = append(sections, fmt.Sprintf("%s %d: %s", l.label, i+1, text))
			}
		})
	}
	return sections
}

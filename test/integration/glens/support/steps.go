package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/glens/internal/detector"
	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/cucumber/godog"
)

// RegisterProviderSteps registers steps that script the fake provider.
func (tc *TestContext) RegisterProviderSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the search provider returns (\d+) results of which (\d+) have thumbnails$`, tc.providerReturns)
	sc.Step(`^the search provider serves (\d+) pages of (\d+) results each$`, tc.providerServesPages)
	sc.Step(`^the search provider fails with status (\d+)$`, tc.providerFails)
	sc.Step(`^the object detector reports boxes "([^"]*)"$`, tc.detectorReports)
}

// RegisterImageSteps registers fixture image steps.
func (tc *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a (\d+)x(\d+) black image with a white square from (\d+),(\d+) to (\d+),(\d+) saved as "([^"]*)"$`, tc.squareImage)
	sc.Step(`^a (\d+)x(\d+) black image saved as "([^"]*)"$`, tc.blackImage)
	sc.Step(`^the image "([^"]*)" is hosted remotely$`, tc.hostImage)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, tc.rawFile)
}

// RegisterRequestSteps registers steps that call the service and check its responses.
func (tc *TestContext) RegisterRequestSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I submit to /glens:$`, tc.submitForm)
	sc.Step(`^I submit an empty form to /glens$`, tc.submitEmpty)
	sc.Step(`^the response status should be (\d+)$`, tc.statusShouldBe)
	sc.Step(`^the response should contain (\d+) results?$`, tc.resultCountShouldBe)
	sc.Step(`^the result titles should be "([^"]*)"$`, tc.titlesShouldBe)
	sc.Step(`^the error message should contain "([^"]*)"$`, tc.errorShouldContain)
	sc.Step(`^the provider should have received an uploaded image of (\d+)x(\d+) pixels$`, tc.uploadShouldBe)
	sc.Step(`^the provider should not have received an upload$`, tc.noUpload)
	sc.Step(`^the provider should have been asked for "([^"]*)"$`, tc.imageURLShouldBe)
	sc.Step(`^the provider should have served (\d+) next pages?$`, tc.nextPagesShouldBe)
	sc.Step(`^no temporary files should remain$`, tc.noTempFiles)
}

func (tc *TestContext) providerReturns(total, withThumbs int) error {
	if withThumbs > total {
		return fmt.Errorf("cannot have %d thumbnails for %d results", withThumbs, total)
	}
	results := make([]Result, 0, total)
	for i := 1; i <= total; i++ {
		r := Result{Title: fmt.Sprintf("Result %d", i), URL: fmt.Sprintf("https://example.com/%d", i)}
		if i <= withThumbs {
			r.Thumbnail = fmt.Sprintf("https://example.com/thumb/%d.jpg", i)
		}
		results = append(results, r)
	}
	tc.Provider.SetPages([][]Result{results})
	return nil
}

func (tc *TestContext) providerServesPages(pages, perPage int) error {
	all := make([][]Result, 0, pages)
	for p := 1; p <= pages; p++ {
		page := make([]Result, 0, perPage)
		for i := 1; i <= perPage; i++ {
			page = append(page, Result{
				Title:     fmt.Sprintf("Page %d result %d", p, i),
				URL:       fmt.Sprintf("https://example.com/%d/%d", p, i),
				Thumbnail: fmt.Sprintf("https://example.com/thumb/%d-%d.jpg", p, i),
			})
		}
		all = append(all, page)
	}
	tc.Provider.SetPages(all)
	return nil
}

func (tc *TestContext) providerFails(status int) error {
	tc.Provider.FailWith(status)
	return nil
}

// detectorReports parses boxes written as "x1,y1,x2,y2;x1,y1,x2,y2".
func (tc *TestContext) detectorReports(boxes string) error {
	dets := []detector.Detection{}
	for _, raw := range strings.Split(boxes, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return fmt.Errorf("box %q needs four coordinates", raw)
		}
		var v [4]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return fmt.Errorf("box %q: %w", raw, err)
			}
			v[i] = f
		}
		dets = append(dets, detector.Detection{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3], Confidence: 0.9})
	}
	tc.detections = dets
	return nil
}

func (tc *TestContext) squareImage(w, h, x1, y1, x2, y2 int, name string) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(x1, y1, x2, y2), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return tc.writePNG(img, name)
}

func (tc *TestContext) blackImage(w, h int, name string) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return tc.writePNG(img, name)
}

// writePNG stores PNG bytes whatever the extension of name says.
func (tc *TestContext) writePNG(img image.Image, name string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return os.WriteFile(tc.Fixture(name), buf.Bytes(), 0o600)
}

func (tc *TestContext) rawFile(name, content string) error {
	return os.WriteFile(tc.Fixture(name), []byte(content), 0o600)
}

func (tc *TestContext) hostImage(name string) error {
	data, err := os.ReadFile(tc.Fixture(name))
	if err != nil {
		return fmt.Errorf("fixture %s: %w", name, err)
	}
	tc.Provider.Host(name, data)
	return nil
}

// expand substitutes {images} with the base URL of hosted fixtures.
func (tc *TestContext) expand(v string) string {
	return strings.ReplaceAll(v, "{images}", tc.Provider.Server.URL+"/images")
}

// submitForm posts a multipart form built from a two-column table. The field
// "image" names a fixture file to upload; every other row is a plain field.
func (tc *TestContext) submitForm(table *godog.Table) error {
	if err := tc.startService(); err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("form rows need two cells, got %d", len(row.Cells))
		}
		name, value := row.Cells[0].Value, tc.expand(row.Cells[1].Value)
		if name == "image" {
			if err := attach(mw, tc.Fixture(value)); err != nil {
				return err
			}
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, tc.Service.URL+"/glens", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.Do(req)
}

func attach(mw *multipart.Writer, path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: fixture path built by the suite
	if err != nil {
		return fmt.Errorf("fixture: %w", err)
	}
	defer func() { _ = f.Close() }()

	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	_, err = io.Copy(part, f)
	return err
}

func (tc *TestContext) submitEmpty() error {
	if err := tc.startService(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.Service.URL+"/glens", strings.NewReader(""))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.Do(req)
}

func (tc *TestContext) statusShouldBe(want int) error {
	if tc.LastStatus != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, tc.LastStatus, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) results() ([]search.Item, error) {
	var items []search.Item
	if err := json.Unmarshal(tc.LastBody, &items); err != nil {
		return nil, fmt.Errorf("response is not a result list: %w: %s", err, tc.LastBody)
	}
	return items, nil
}

func (tc *TestContext) resultCountShouldBe(want int) error {
	items, err := tc.results()
	if err != nil {
		return err
	}
	if len(items) != want {
		return fmt.Errorf("expected %d results, got %d: %s", want, len(items), tc.LastBody)
	}
	return nil
}

func (tc *TestContext) titlesShouldBe(list string) error {
	items, err := tc.results()
	if err != nil {
		return err
	}
	want := strings.Split(list, ", ")
	got := make([]string, 0, len(items))
	for _, it := range items {
		got = append(got, it.Title)
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		return fmt.Errorf("expected titles %q, got %q", want, got)
	}
	return nil
}

func (tc *TestContext) errorShouldContain(fragment string) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(tc.LastBody, &body); err != nil {
		return fmt.Errorf("response is not an error document: %w: %s", err, tc.LastBody)
	}
	if !strings.Contains(body.Error, fragment) {
		return fmt.Errorf("expected error to contain %q, got %q", fragment, body.Error)
	}
	return nil
}

func (tc *TestContext) uploadShouldBe(w, h int) error {
	uploads := tc.Provider.Uploads()
	if len(uploads) != 1 {
		return fmt.Errorf("expected one upload, got %d", len(uploads))
	}
	if uploads[0] != image.Pt(w, h) {
		return fmt.Errorf("expected a %dx%d upload, got %dx%d", w, h, uploads[0].X, uploads[0].Y)
	}
	return nil
}

func (tc *TestContext) noUpload() error {
	if n := len(tc.Provider.Uploads()); n != 0 {
		return fmt.Errorf("expected no uploads, got %d", n)
	}
	return nil
}

func (tc *TestContext) imageURLShouldBe(want string) error {
	want = tc.expand(want)
	for _, got := range tc.Provider.ImageURLs() {
		if got == want {
			return nil
		}
	}
	return fmt.Errorf("provider was not asked for %q, saw %q", want, tc.Provider.ImageURLs())
}

func (tc *TestContext) nextPagesShouldBe(want int) error {
	if got := tc.Provider.NextRequests(); got != want {
		return fmt.Errorf("expected %d next-page requests, got %d", want, got)
	}
	return nil
}

func (tc *TestContext) noTempFiles() error {
	entries, err := os.ReadDir(tc.TempDir)
	if err != nil {
		return fmt.Errorf("failed to list temp dir: %w", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return fmt.Errorf("temporary files left behind: %v", names)
	}
	return nil
}

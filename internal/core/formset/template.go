package formset

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Placeholder 範本中代表列索引的佔位符
const Placeholder = "__prefix__"

// 範本中固定使用的欄位後綴
const (
	FieldID       = "id"
	FieldName     = "name"
	FieldQuantity = "quantity"
	FieldUnit     = "unit"
	FieldDelete   = "DELETE"
)

// 預設列範本（與伺服器 empty-form 範本結構一致）
const defaultTemplateHTML = `<div class="ingredient-form">
  <input type="hidden" name="{{prefix}}-__prefix__-id" id="id_{{prefix}}-__prefix__-id">
  <div class="relative">
    <label for="id_{{prefix}}-__prefix__-name">Ingredient</label>
    <input type="text" class="ingredient-autocomplete" autocomplete="off">
    <select name="{{prefix}}-__prefix__-name" id="id_{{prefix}}-__prefix__-name" class="hidden"></select>
    <div class="suggestions-container"></div>
  </div>
  <label for="id_{{prefix}}-__prefix__-quantity">Quantity</label>
  <input type="text" name="{{prefix}}-__prefix__-quantity" id="id_{{prefix}}-__prefix__-quantity">
  <label for="id_{{prefix}}-__prefix__-unit">Unit</label>
  <input type="text" name="{{prefix}}-__prefix__-unit" id="id_{{prefix}}-__prefix__-unit">
  <input type="checkbox" name="{{prefix}}-__prefix__-DELETE" id="id_{{prefix}}-__prefix__-DELETE" class="hidden">
  <button type="button" class="remove-ingredient-btn">Remove</button>
  <button type="button" class="create-ingredient-btn">Create</button>
</div>`

// Template 帶位置佔位符的列範本
type Template struct {
	prefix string
	html   string
	fields []string
}

// DefaultTemplate 以表單集前綴建立預設範本
func DefaultTemplate(prefix string) *Template {
	t, err := ParseTemplate(strings.ReplaceAll(defaultTemplateHTML, "{{prefix}}", prefix))
	if err != nil {
		panic(fmt.Sprintf("default formset template: %v", err))
	}
	return t
}

// LoadTemplate 從檔案讀取範本，path 為空時使用預設範本
func LoadTemplate(path, prefix string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(prefix), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read formset template: %w", err)
	}
	t, err := ParseTemplate(string(raw))
	if err != nil {
		return nil, err
	}
	if t.prefix != prefix {
		return nil, fmt.Errorf("template prefix %q does not match configured prefix %q", t.prefix, prefix)
	}
	return t, nil
}

// ParseTemplate 解析 HTML 列範本，取得前綴與欄位清單
func ParseTemplate(fragment string) (*Template, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to parse formset template: %w", err)
	}

	t := &Template{html: fragment}
	var parseErr error
	doc.Find(`[name*="` + Placeholder + `"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		marker := "-" + Placeholder + "-"
		i := strings.Index(name, marker)
		if i <= 0 {
			parseErr = fmt.Errorf("field %q does not follow <prefix>-%s-<field>", name, Placeholder)
			return false
		}
		prefix, field := name[:i], name[i+len(marker):]
		if t.prefix == "" {
			t.prefix = prefix
		} else if t.prefix != prefix {
			parseErr = fmt.Errorf("template mixes prefixes %q and %q", t.prefix, prefix)
			return false
		}
		t.fields = append(t.fields, field)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(t.fields) == 0 {
		return nil, fmt.Errorf("template has no %s fields", Placeholder)
	}
	return t, nil
}

// Prefix 表單集前綴
func (t *Template) Prefix() string {
	return t.prefix
}

// Fields 範本內的欄位後綴（依出現順序）
func (t *Template) Fields() []string {
	out := make([]string, len(t.fields))
	copy(out, t.fields)
	return out
}

// FieldName 指定索引的欄位名稱，例如 ingredient_set-3-quantity
func (t *Template) FieldName(index int, field string) string {
	return t.prefix + "-" + strconv.Itoa(index) + "-" + field
}

// ManagementName 管理欄位名稱，例如 ingredient_set-TOTAL_FORMS
func (t *Template) ManagementName(name string) string {
	return t.prefix + "-" + name
}

// Identifiers 指定索引下所有欄位的名稱
func (t *Template) Identifiers(index int) map[string]string {
	ids := make(map[string]string, len(t.fields))
	for _, f := range t.fields {
		ids[f] = t.FieldName(index, f)
	}
	return ids
}

// Render 將列輸出為 HTML：替換佔位符並填入欄位值
func (t *Template) Render(row Row) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(t.html))
	if err != nil {
		return "", fmt.Errorf("failed to parse formset template: %w", err)
	}
	index := strconv.Itoa(row.Index)

	for _, attr := range []string{"name", "id", "for"} {
		doc.Find("[" + attr + `*="` + Placeholder + `"]`).Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(attr)
			s.SetAttr(attr, strings.ReplaceAll(v, Placeholder, index))
		})
	}

	field := func(name string) *goquery.Selection {
		return doc.Find(`[name="` + t.FieldName(row.Index, name) + `"]`)
	}

	doc.Find(".ingredient-autocomplete").SetAttr("value", row.DisplayName)
	if row.ManagedID > 0 {
		field(FieldName).AppendHtml(fmt.Sprintf(`<option value="%d" selected="selected"></option>`, row.ManagedID))
		field(FieldName).Find("option").Last().SetText(row.DisplayName)
	}
	if row.Quantity != "" {
		field(FieldQuantity).SetAttr("value", row.Quantity)
	}
	if row.Unit != "" {
		field(FieldUnit).SetAttr("value", row.Unit)
	}
	if row.PersistedID > 0 {
		field(FieldID).SetAttr("value", strconv.FormatInt(row.PersistedID, 10))
	}

	form := doc.Find(".ingredient-form").First()
	form.SetAttr("data-row-key", row.Key)
	if row.IsNew() {
		// 只有既有資料列才有刪除標記欄位
		field(FieldDelete).Remove()
	} else if row.Deleted {
		field(FieldDelete).SetAttr("checked", "checked")
		form.SetAttr("style", "display: none")
	}
	if row.Status != nil {
		form.AppendHtml(`<div class="form-message"><span class="text-sm"></span></div>`)
		msg := form.Find(".form-message").Last()
		msg.AddClass("alert", "alert-"+string(row.Status.Level), "mt-2")
		msg.Find("span").SetText(row.Status.Message)
	}

	return doc.Find("body").Html()
}

package validate

import (
	"testing"

	"github.com/hitoshi/courseman/internal/model"
)

func TestCourse_Structural(t *testing.T) {
	tests := []struct {
		name   string
		course model.Course
		want   bool
	}{
		{
			name:   "必須フィールドのみで有効",
			course: model.Course{Title: "Python 기초", URL: "https://inflearn.com/course/python-basics"},
			want:   true,
		},
		{
			name: "全フィールドありで有効",
			course: model.Course{
				Title:        "Python 기초",
				URL:          "https://inflearn.com/course/python-basics",
				Instructor:   "홍길동",
				Rating:       model.Float64Ptr(4.5),
				ReviewCount:  model.Int64Ptr(100),
				StudentCount: model.Int64Ptr(500),
			},
			want: true,
		},
		{
			name:   "タイトル欠落は無効",
			course: model.Course{URL: "https://inflearn.com/course/python-basics"},
			want:   false,
		},
		{
			name:   "URL欠落は無効",
			course: model.Course{Title: "Python 기초"},
			want:   false,
		},
		{
			name:   "タイトルが2文字は無効",
			course: model.Course{Title: "AB", URL: "https://inflearn.com/course/x"},
			want:   false,
		},
		{
			name:   "タイトルが3文字は有効",
			course: model.Course{Title: "ABC", URL: "https://inflearn.com/course/x"},
			want:   true,
		},
		{
			name:   "空白のみのタイトルは無効",
			course: model.Course{Title: "     ", URL: "https://inflearn.com/course/x"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Course(tt.course); got != tt.want {
				t.Errorf("Course() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstructor(t *testing.T) {
	valid := []string{
		"홍길동",
		"김철수",
		"박영희",
		"John Doe",
		"Jane Smith",
		"홍길동 (John)",
		"인프런 팀",
	}
	for _, name := range valid {
		if !Instructor(name) {
			t.Errorf("Instructor(%q) = false, want true", name)
		}
	}

	invalid := map[string]string{
		"(7)":            "括弧付き整数はリビュー数の誤取り",
		"(244)":          "括弧付き整数はリビュー数の誤取り",
		"(1000)":         "括弧付き整数はリビュー数の誤取り",
		"4.9":            "裸の小数は評点の誤取り",
		"5.0":            "裸の小数は評点の誤取り",
		"100":            "裸の整数は評点の誤取り",
		"35%":            "パーセント記号は割引率の誤取り",
		"₩77,000":        "通貨記号は価格の誤取り",
		"3일만 특가":     "期間限定プロモーション文言",
		"Python":         "短いラテン文字トークンは技術タグ",
		"React":          "短いラテン文字トークンは技術タグ",
		"":               "空文字",
		"   ":            "空白のみ",
		"A":              "短すぎる",
	}
	for name, reason := range invalid {
		if Instructor(name) {
			t.Errorf("Instructor(%q) = true, want false (%s)", name, reason)
		}
	}
}

func TestInstructor_LengthBand(t *testing.T) {
	// 51文字は上限超過
	long := make([]rune, 51)
	for i := range long {
		long[i] = '가'
	}
	if Instructor(string(long)) {
		t.Error("50文字を超える講師名は無効でなければならない")
	}

	// 50文字ちょうどは許容
	if !Instructor(string(long[:50])) {
		t.Error("50文字の講師名は有効でなければならない")
	}
}

func TestForStorage(t *testing.T) {
	base := func() model.Course {
		return model.Course{
			Title: "Python 기초",
			URL:   "https://inflearn.com/course/python-basics",
		}
	}

	t.Run("必須フィールドのみで有効", func(t *testing.T) {
		if !ForStorage(base()) {
			t.Error("ForStorage() = false, want true")
		}
	})

	t.Run("評点が範囲外は無効", func(t *testing.T) {
		c := base()
		c.Rating = model.Float64Ptr(5.5)
		if ForStorage(c) {
			t.Error("評点5.5のレコードは無効でなければならない")
		}
		c.Rating = model.Float64Ptr(-0.1)
		if ForStorage(c) {
			t.Error("評点-0.1のレコードは無効でなければならない")
		}
	})

	t.Run("評点が境界値は有効", func(t *testing.T) {
		c := base()
		c.Rating = model.Float64Ptr(0)
		if !ForStorage(c) {
			t.Error("評点0のレコードは有効でなければならない")
		}
		c.Rating = model.Float64Ptr(5)
		if !ForStorage(c) {
			t.Error("評点5のレコードは有効でなければならない")
		}
	})

	t.Run("負のカウント・価格は無効", func(t *testing.T) {
		for _, set := range []func(*model.Course){
			func(c *model.Course) { c.ReviewCount = model.Int64Ptr(-1) },
			func(c *model.Course) { c.StudentCount = model.Int64Ptr(-1) },
			func(c *model.Course) { c.OriginalPrice = model.Int64Ptr(-1) },
			func(c *model.Course) { c.SalePrice = model.Int64Ptr(-100) },
		} {
			c := base()
			set(&c)
			if ForStorage(c) {
				t.Error("負の数値フィールドを持つレコードは無効でなければならない")
			}
		}
	})

	t.Run("ソフト不変条件は拒否しない", func(t *testing.T) {
		c := base()
		c.ReviewCount = model.Int64Ptr(500)
		c.StudentCount = model.Int64Ptr(100)
		if !ForStorage(c) {
			t.Error("review_count > student_count は警告のみで有効でなければならない")
		}
	})

	t.Run("タイトル欠落は多重防御で無効", func(t *testing.T) {
		c := base()
		c.Title = ""
		if ForStorage(c) {
			t.Error("タイトル欠落のレコードは無効でなければならない")
		}
	})

	t.Run("nullフィールドは許容", func(t *testing.T) {
		if !ForStorage(base()) {
			t.Error("数値フィールドがすべてnullのレコードは有効でなければならない")
		}
	})
}

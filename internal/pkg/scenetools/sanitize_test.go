package scenetools

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSanitizer_Sanitize(t *testing.T) {
	Convey("Sanitize 按固定替换表脱敏", t, func() {
		s := NewSanitizer()

		Convey("英文敏感词被替换", func() {
			got := s.Sanitize("a man holding a gun, blood on the floor")
			So(got, ShouldNotContainSubstring, "gun")
			So(got, ShouldNotContainSubstring, "blood")
			So(got, ShouldContainSubstring, "prop device")
			So(got, ShouldContainSubstring, "red liquid")
		})

		Convey("大小写不敏感", func() {
			got := s.Sanitize("Blood and WEAPON")
			So(strings.ToLower(got), ShouldNotContainSubstring, "blood")
			So(strings.ToLower(got), ShouldNotContainSubstring, "weapon")
		})

		Convey("俄文敏感词被替换", func() {
			got := s.Sanitize("кровь на снегу, оружие в руке")
			So(got, ShouldNotContainSubstring, "кровь")
			So(got, ShouldNotContainSubstring, "оружие")
			So(got, ShouldContainSubstring, "красная жидкость")
		})

		Convey("确定性：同样输入两次得到同样输出", func() {
			in := "blood, gun, кровь"
			So(s.Sanitize(in), ShouldEqual, s.Sanitize(in))
		})

		Convey("无敏感词时原样返回", func() {
			So(s.Sanitize("маяк на скале ночью"), ShouldEqual, "маяк на скале ночью")
		})
	})
}

func TestSanitizer_Simplify(t *testing.T) {
	Convey("Simplify 去掉元信息并截断", t, func() {
		s := NewSanitizer()

		Convey("去掉位置性措辞", func() {
			got := s.Simplify("scene 2 of 5: a lighthouse at night", 0)
			So(got, ShouldNotContainSubstring, "scene 2 of 5")
			So(got, ShouldContainSubstring, "lighthouse at night")
		})

		Convey("去掉俄文位置性措辞", func() {
			got := s.Simplify("сцена 1 из 3: маяк ночью", 0)
			So(got, ShouldNotContainSubstring, "сцена 1 из 3")
			So(got, ShouldContainSubstring, "маяк ночью")
		})

		Convey("去掉括号注释", func() {
			got := s.Simplify("a lighthouse (rendered in 4k, dramatic) at night", 0)
			So(got, ShouldNotContainSubstring, "(")
			So(got, ShouldContainSubstring, "a lighthouse at night")
		})

		Convey("去掉镜头指令前缀", func() {
			got := s.Simplify("close-up: weathered stone wall", 0)
			So(got, ShouldEqual, "weathered stone wall")
		})

		Convey("超长文本按词边界截断", func() {
			got := s.Simplify("a lighthouse standing on the rocks near the stormy sea", 30)
			So(len([]rune(got)), ShouldBeLessThanOrEqualTo, 30)
			// 不会切在单词中间
			So(strings.HasSuffix(got, " "), ShouldBeFalse)
			words := strings.Fields("a lighthouse standing on the rocks near the stormy sea")
			for _, w := range strings.Fields(got) {
				So(words, ShouldContain, w)
			}
		})

		Convey("连续 CJK 文本截断不超过上限", func() {
			got := s.Simplify("灯塔矗立在暴风雨中的礁石上灯光划破黑暗夜空", 10)
			So(got, ShouldNotBeEmpty)
			So(len([]rune(got)), ShouldBeLessThanOrEqualTo, 10)
		})

		Convey("不超长时不截断", func() {
			So(s.Simplify("short prompt", 100), ShouldEqual, "short prompt")
		})
	})
}

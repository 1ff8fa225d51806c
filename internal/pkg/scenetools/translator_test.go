package scenetools

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
)

// fakeLLM 可编程的 LLMProvider 测试替身
type fakeLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func TestTranslator_TranslateScenes(t *testing.T) {
	Convey("TranslateScenes 三级降级翻译", t, func() {
		scenes := []pipeline.Scene{
			{ID: 1, Prompt: "lighthouse at night", Duration: 5, Atmosphere: "cinematic"},
			{ID: 2, Prompt: "storm over the sea", Duration: 5, Atmosphere: "dramatic"},
		}

		Convey("LLM 返回合法 JSON 数组时采用，提示词和氛围都翻译", func() {
			llm := &fakeLLM{responses: []string{
				`[{"prompt":"маяк ночью","atmosphere":"кинематографичный"},` +
					`{"prompt":"шторм над морем","atmosphere":"драматичный"}]`,
			}}
			tr := NewTranslator(llm, "ru")

			got := tr.TranslateScenes(context.Background(), scenes)
			So(got[0].Prompt, ShouldEqual, "маяк ночью")
			So(got[1].Prompt, ShouldEqual, "шторм над морем")
			So(got[0].Atmosphere, ShouldEqual, "кинематографичный")
			So(got[1].Atmosphere, ShouldEqual, "драматичный")
			// 其它字段不动
			So(got[0].ID, ShouldEqual, 1)
			So(got[1].Duration, ShouldEqual, 5)
		})

		Convey("LLM 失败退词典替换", func() {
			llm := &fakeLLM{err: errors.New("model down")}
			tr := NewTranslator(llm, "ru")

			got := tr.TranslateScenes(context.Background(), scenes)
			So(got[0].Prompt, ShouldContainSubstring, "маяк")
			So(got[1].Prompt, ShouldContainSubstring, "шторм")
			// 氛围也走词典
			So(got[0].Atmosphere, ShouldEqual, "кинематографичный")
			So(got[1].Atmosphere, ShouldEqual, "драматичный")
		})

		Convey("数量不匹配退词典替换", func() {
			llm := &fakeLLM{responses: []string{`[{"prompt":"только один","atmosphere":"x"}]`}}
			tr := NewTranslator(llm, "ru")

			got := tr.TranslateScenes(context.Background(), scenes)
			So(got[0].Prompt, ShouldContainSubstring, "маяк")
		})

		Convey("翻译结果为空时恢复原文本", func() {
			llm := &fakeLLM{responses: []string{
				`[{"prompt":"","atmosphere":""},` +
					`{"prompt":"шторм над морем","atmosphere":"драматичный"}]`,
			}}
			tr := NewTranslator(llm, "ru")

			got := tr.TranslateScenes(context.Background(), scenes)
			So(got[0].Prompt, ShouldNotBeEmpty)
			So(got[0].Atmosphere, ShouldNotBeEmpty)
			So(got[1].Prompt, ShouldEqual, "шторм над морем")
			So(got[1].Atmosphere, ShouldEqual, "драматичный")
		})

		Convey("目标语言为空时整体关闭", func() {
			llm := &fakeLLM{}
			tr := NewTranslator(llm, "")

			got := tr.TranslateScenes(context.Background(), scenes)
			So(got[0].Prompt, ShouldEqual, "lighthouse at night")
			So(llm.calls, ShouldEqual, 0)
		})
	})
}

func TestTranslator_TranslateText(t *testing.T) {
	Convey("TranslateText 单段文本翻译", t, func() {
		Convey("LLM 路径", func() {
			llm := &fakeLLM{responses: []string{`["маяк в шторм"]`}}
			tr := NewTranslator(llm, "ru")
			So(tr.TranslateText(context.Background(), "lighthouse in a storm"), ShouldEqual, "маяк в шторм")
		})

		Convey("LLM 失败退词典，词典没命中保留原文", func() {
			llm := &fakeLLM{err: errors.New("down")}
			tr := NewTranslator(llm, "ru")
			So(tr.TranslateText(context.Background(), "abstract shapes"), ShouldEqual, "abstract shapes")
		})

		Convey("空文本原样返回", func() {
			tr := NewTranslator(&fakeLLM{}, "ru")
			So(tr.TranslateText(context.Background(), ""), ShouldBeEmpty)
		})
	})
}

func TestDictionaryTranslate(t *testing.T) {
	Convey("dictionaryTranslate 先长后短替换", t, func() {
		got := dictionaryTranslate("close-up of the lighthouse light")
		So(got, ShouldContainSubstring, "крупный план")
		So(got, ShouldContainSubstring, "маяк")
		So(got, ShouldContainSubstring, "свет")
	})
}

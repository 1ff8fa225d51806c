package pipeline

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/ffmpeg"
)

// fakeProber 可编程的探测替身
type fakeProber struct {
	probe func(path string) (*ffmpeg.ProbeInfo, error)
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeInfo, error) {
	return f.probe(path)
}

// fakeEncoder 记录合成调用的替身
type fakeEncoder struct {
	crossFadeInputs    []string
	crossFadeDurations []float64
	crossFadeAudio     bool
	concatInputs       []string
	reencodeInput      string
	onOutput           func(outputPath string) error // 可选：模拟产出文件
}

func (f *fakeEncoder) CrossFade(ctx context.Context, inputs []string, durations []float64, withAudio bool, fps int, outputPath string) error {
	f.crossFadeInputs = inputs
	f.crossFadeDurations = durations
	f.crossFadeAudio = withAudio
	if f.onOutput != nil {
		return f.onOutput(outputPath)
	}
	return nil
}

func (f *fakeEncoder) Concat(ctx context.Context, inputs []string, withAudio bool, fps int, outputPath string) error {
	f.concatInputs = inputs
	if f.onOutput != nil {
		return f.onOutput(outputPath)
	}
	return nil
}

func (f *fakeEncoder) Reencode(ctx context.Context, inputPath string, fps int, outputPath string) error {
	f.reencodeInput = inputPath
	if f.onOutput != nil {
		return f.onOutput(outputPath)
	}
	return nil
}

func probeOK(duration float64, hasAudio bool) func(string) (*ffmpeg.ProbeInfo, error) {
	return func(string) (*ffmpeg.ProbeInfo, error) {
		return &ffmpeg.ProbeInfo{Width: 768, Height: 432, FPS: 30, Duration: duration, HasAudio: hasAudio}, nil
	}
}

func TestStitcher_Stitch(t *testing.T) {
	Convey("Stitch 片段合成", t, func() {
		ctx := context.Background()

		Convey("多片段默认叠化，全员带音频时启用音频淡化", func() {
			enc := &fakeEncoder{}
			s := NewStitcher(&fakeProber{probe: probeOK(5, true)}, enc, 30, 1, true)

			err := s.Stitch(ctx, []string{"a.mp4", "b.mp4", "c.mp4"}, "out.mp4")
			So(err, ShouldBeNil)
			So(enc.crossFadeInputs, ShouldResemble, []string{"a.mp4", "b.mp4", "c.mp4"})
			So(enc.crossFadeDurations, ShouldResemble, []float64{5, 5, 5})
			So(enc.crossFadeAudio, ShouldBeTrue)
			// 三个 5 秒片段、0.5 秒过渡 → 成品 14 秒
			So(ffmpeg.TotalDuration(enc.crossFadeDurations, ffmpeg.DefaultTransition), ShouldAlmostEqual, 14.0, 0.001)
		})

		Convey("任一片段无音频则整体关闭音频", func() {
			n := 0
			prober := &fakeProber{probe: func(path string) (*ffmpeg.ProbeInfo, error) {
				n++
				return &ffmpeg.ProbeInfo{Width: 768, Height: 432, Duration: 5, HasAudio: n != 2}, nil
			}}
			enc := &fakeEncoder{}
			s := NewStitcher(prober, enc, 30, 1, true)

			err := s.Stitch(ctx, []string{"a.mp4", "b.mp4", "c.mp4"}, "out.mp4")
			So(err, ShouldBeNil)
			So(enc.crossFadeAudio, ShouldBeFalse)
		})

		Convey("损坏的中间片段被跳过", func() {
			prober := &fakeProber{probe: func(path string) (*ffmpeg.ProbeInfo, error) {
				if path == "b.mp4" {
					return nil, errors.New("no usable video stream")
				}
				return &ffmpeg.ProbeInfo{Width: 768, Height: 432, Duration: 5, HasAudio: true}, nil
			}}
			enc := &fakeEncoder{}
			s := NewStitcher(prober, enc, 30, 1, true)

			err := s.Stitch(ctx, []string{"a.mp4", "b.mp4", "c.mp4"}, "out.mp4")
			So(err, ShouldBeNil)
			So(enc.crossFadeInputs, ShouldResemble, []string{"a.mp4", "c.mp4"})
		})

		Convey("空路径（下载失败的片段）被跳过", func() {
			enc := &fakeEncoder{}
			s := NewStitcher(&fakeProber{probe: probeOK(5, true)}, enc, 30, 1, true)

			err := s.Stitch(ctx, []string{"a.mp4", "", "c.mp4"}, "out.mp4")
			So(err, ShouldBeNil)
			So(enc.crossFadeInputs, ShouldResemble, []string{"a.mp4", "c.mp4"})
		})

		Convey("只剩一个片段时重编码而不是过渡", func() {
			enc := &fakeEncoder{}
			s := NewStitcher(&fakeProber{probe: probeOK(5, true)}, enc, 30, 1, true)

			err := s.Stitch(ctx, []string{"only.mp4"}, "out.mp4")
			So(err, ShouldBeNil)
			So(enc.reencodeInput, ShouldEqual, "only.mp4")
			So(enc.crossFadeInputs, ShouldBeEmpty)
		})

		Convey("关闭过渡时硬切拼接", func() {
			enc := &fakeEncoder{}
			s := NewStitcher(&fakeProber{probe: probeOK(5, true)}, enc, 30, 1, false)

			err := s.Stitch(ctx, []string{"a.mp4", "b.mp4"}, "out.mp4")
			So(err, ShouldBeNil)
			So(enc.concatInputs, ShouldResemble, []string{"a.mp4", "b.mp4"})
			So(enc.crossFadeInputs, ShouldBeEmpty)
		})

		Convey("没有任何可用片段返回 ErrNoClips", func() {
			prober := &fakeProber{probe: func(string) (*ffmpeg.ProbeInfo, error) {
				return nil, errors.New("corrupt")
			}}
			s := NewStitcher(prober, &fakeEncoder{}, 30, 1, true)

			err := s.Stitch(ctx, []string{"a.mp4", "b.mp4"}, "out.mp4")
			So(errors.Is(err, ErrNoClips), ShouldBeTrue)
		})
	})
}

package audio

import "testing"

func TestFormatConverter_FastPath(t *testing.T) {
	conv := FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
	in := AudioFrame{Data: Int16sToBytes([]int16{1, 2, 3}), SampleRate: 16000, Channels: 1}
	out := conv.Convert(in)
	if &out.Data[0] != &in.Data[0] {
		t.Error("matching format should return the frame unchanged without copying")
	}
}

func TestFormatConverter_DropsOddByteCount(t *testing.T) {
	conv := FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
	out := conv.Convert(AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if out.Data != nil {
		t.Errorf("corrupt frame should be dropped, got %d bytes", len(out.Data))
	}
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Errorf("dropped frame should carry target format, got %dHz/%dch", out.SampleRate, out.Channels)
	}
}

func TestFormatConverter_ResampleAndDownmix(t *testing.T) {
	conv := FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
	// 10ms of 48kHz stereo: 480 frames.
	stereo := make([]int16, 480*2)
	for i := range stereo {
		stereo[i] = int16(i % 100)
	}
	out := conv.Convert(AudioFrame{Data: Int16sToBytes(stereo), SampleRate: 48000, Channels: 2})
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("got %dHz/%dch, want 16000Hz/1ch", out.SampleRate, out.Channels)
	}
	// 480 frames at 48k resample to 160 at 16k, mono = 2 bytes each.
	if len(out.Data) != 160*2 {
		t.Errorf("got %d bytes, want %d", len(out.Data), 160*2)
	}
}

func TestFormatConverter_Upmix(t *testing.T) {
	conv := FormatConverter{Target: Format{SampleRate: 24000, Channels: 2}}
	out := conv.Convert(AudioFrame{Data: Int16sToBytes([]int16{5, -5}), SampleRate: 24000, Channels: 1})
	got := BytesToInt16s(out.Data)
	want := []int16{5, 5, -5, -5}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestToStereo16(t *testing.T) {
	out := BytesToInt16s(ToStereo16(Int16sToBytes([]int16{7, -9})))
	want := []int16{7, 7, -9, -9}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestToMono16(t *testing.T) {
	out := BytesToInt16s(ToMono16(Int16sToBytes([]int16{100, 200, -100, -300})))
	want := []int16{150, -200}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestResample16(t *testing.T) {
	t.Run("same rate is identity", func(t *testing.T) {
		in := Int16sToBytes([]int16{1, 2, 3})
		if got := Resample16(in, 1, 16000, 16000); &got[0] != &in[0] {
			t.Error("same-rate resample should return input")
		}
	})

	t.Run("halves sample count when downsampling 2x", func(t *testing.T) {
		in := make([]int16, 320)
		got := Resample16(Int16sToBytes(in), 1, 32000, 16000)
		if len(got) != 160*2 {
			t.Errorf("got %d bytes, want %d", len(got), 160*2)
		}
	})

	t.Run("constant signal stays constant", func(t *testing.T) {
		in := make([]int16, 160)
		for i := range in {
			in[i] = 1000
		}
		for _, s := range BytesToInt16s(Resample16(Int16sToBytes(in), 1, 16000, 24000)) {
			if s != 1000 {
				t.Fatalf("got %d, want 1000", s)
			}
		}
	})

	t.Run("stereo keeps channels independent", func(t *testing.T) {
		// Left constant 1000, right constant -1000, downsampled 2x.
		in := make([]int16, 80*2)
		for i := 0; i < len(in); i += 2 {
			in[i], in[i+1] = 1000, -1000
		}
		got := BytesToInt16s(Resample16(Int16sToBytes(in), 2, 48000, 24000))
		if len(got) != 40*2 {
			t.Fatalf("got %d samples, want %d", len(got), 40*2)
		}
		for i := 0; i < len(got); i += 2 {
			if got[i] != 1000 || got[i+1] != -1000 {
				t.Fatalf("frame %d = (%d,%d), want (1000,-1000)", i/2, got[i], got[i+1])
			}
		}
	})
}

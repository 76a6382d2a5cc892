package stretch_test

import (
	"fmt"

	"github.com/cwbudde/algo-stretch/dsp/stretch"
)

func Example() {
	s, err := stretch.New(stretch.Parameters{
		SampleRate: 48000,
		Channels:   1,
		Options:    stretch.OptionProcessRealTime,
	}, 1.0, 2.0, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(s.PreferredStartPad())
	fmt.Println(s.StartDelay())
	fmt.Println(s.SamplesRequired())
	// Output:
	// 2048
	// 1024
	// 4096
}

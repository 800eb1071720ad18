package roles

import (
	"strconv"
	"time"
)

// Описания позиционных аргументов для сообщений об использовании
const (
	ReceiverUsage           = "PORT LATENCY SIZE-TIME(ms)"
	TransmitterUsage        = "ADDRESS PORT OPUS_BITRATE PERCENTAGE PERCENTAGE_IMPORTANT"
	TestSrcTransmitterUsage = "ADDRESS PORT OPUS_BITRATE OPUS_FRAME_SIZE PERCENTAGE PERCENTAGE_IMPORTANT WAVE FREQ"
)

// ParseReceiverArgs разбирает PORT LATENCY SIZE-TIME(ms).
// Ничего не создает во фреймворке, поэтому вызывается до сборки графа.
func ParseReceiverArgs(binary string, args []string) (ReceiverConfig, error) {
	cfg := DefaultReceiverConfig()
	if len(args) != 3 {
		return cfg, &UsageError{Binary: binary, Args: ReceiverUsage}
	}

	var err error
	if cfg.Port, err = parseInt("PORT", args[0]); err != nil {
		return cfg, err
	}
	latency, err := parseUint("LATENCY", args[1])
	if err != nil {
		return cfg, err
	}
	cfg.Latency = latency
	sizeTime, err := parseUint("SIZE-TIME", args[2])
	if err != nil {
		return cfg, err
	}
	cfg.SizeTime = time.Duration(sizeTime) * time.Millisecond

	return cfg, cfg.Validate()
}

// ParseTransmitterArgs разбирает ADDRESS PORT OPUS_BITRATE PERCENTAGE PERCENTAGE_IMPORTANT
func ParseTransmitterArgs(binary string, args []string) (TransmitterConfig, error) {
	cfg := DefaultTransmitterConfig()
	if len(args) != 5 {
		return cfg, &UsageError{Binary: binary, Args: TransmitterUsage}
	}
	if err := parseCommon(&cfg, args[0], args[1], args[2], args[3], args[4]); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ParseTestSrcTransmitterArgs разбирает
// ADDRESS PORT OPUS_BITRATE OPUS_FRAME_SIZE PERCENTAGE PERCENTAGE_IMPORTANT WAVE FREQ
func ParseTestSrcTransmitterArgs(binary string, args []string) (TransmitterConfig, error) {
	cfg := DefaultTransmitterConfig()
	if len(args) != 8 {
		return cfg, &UsageError{Binary: binary, Args: TestSrcTransmitterUsage}
	}
	if err := parseCommon(&cfg, args[0], args[1], args[2], args[4], args[5]); err != nil {
		return cfg, err
	}

	frameSize, err := parseInt("OPUS_FRAME_SIZE", args[3])
	if err != nil {
		return cfg, err
	}
	cfg.FrameSize = FrameSize(frameSize)

	wave, err := parseInt("WAVE", args[6])
	if err != nil {
		return cfg, err
	}
	freq, err := strconv.ParseFloat(args[7], 64)
	if err != nil {
		return cfg, &InvalidArgumentError{Name: "FREQ", Value: args[7], Wrapped: err}
	}
	cfg.Source = SourceConfig{Factory: "audiotestsrc", TestSignal: true, Wave: wave, Freq: freq}

	return cfg, cfg.Validate()
}

func parseCommon(cfg *TransmitterConfig, address, port, bitrate, percentage, important string) error {
	var err error
	cfg.Address = address
	if cfg.Port, err = parseInt("PORT", port); err != nil {
		return err
	}
	if cfg.Bitrate, err = parseInt("OPUS_BITRATE", bitrate); err != nil {
		return err
	}
	if cfg.FEC.Percentage, err = parseUint("PERCENTAGE", percentage); err != nil {
		return err
	}
	if cfg.FEC.PercentageImportant, err = parseUint("PERCENTAGE_IMPORTANT", important); err != nil {
		return err
	}
	return nil
}

func parseInt(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InvalidArgumentError{Name: name, Value: s, Wrapped: err}
	}
	return v, nil
}

func parseUint(name, s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, &InvalidArgumentError{Name: name, Value: s, Wrapped: err}
	}
	return uint(v), nil
}

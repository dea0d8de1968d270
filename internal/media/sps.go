package media

import "errors"

// SPSInfo holds the parameters the decoder needs from an H.264 Sequence
// Parameter Set: the coded picture dimensions plus profile/level identifiers.
type SPSInfo struct {
	Width      int
	Height     int
	ProfileIDC byte
	LevelIDC   byte
}

var errSPSTooShort = errors.New("media: SPS data too short")

type bitReader struct {
	data []byte
	pos  int
	bit  int
}

func (br *bitReader) readBit() (uint, error) {
	if br.pos >= len(br.data) {
		return 0, errSPSTooShort
	}
	val := uint((br.data[br.pos] >> (7 - br.bit)) & 1)
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return val, nil
}

func (br *bitReader) readBits(n int) (uint, error) {
	var val uint
	for i := 0; i < n; i++ {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		val = (val << 1) | b
	}
	return val, nil
}

// readUE reads an Exp-Golomb coded unsigned value.
func (br *bitReader) readUE() (uint, error) {
	zeros := 0
	for {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errSPSTooShort
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return (1 << zeros) - 1 + suffix, nil
}

func (br *bitReader) readSE() (int, error) {
	val, err := br.readUE()
	if err != nil {
		return 0, err
	}
	if val%2 == 0 {
		return -int(val / 2), nil
	}
	return int((val + 1) / 2), nil
}

func (br *bitReader) skipScalingList(size int) error {
	lastScale := 8
	nextScale := 8
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta, err := br.readSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// ParseSPS extracts picture dimensions and profile/level from an SPS NAL.
// The input is the raw NAL including the header byte, without a start code.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}
	if NALType(nalu) != NALTypeSPS {
		return SPSInfo{}, errors.New("media: not an SPS NAL")
	}

	var info SPSInfo
	info.ProfileIDC = nalu[1]
	info.LevelIDC = nalu[3]

	br := &bitReader{data: unescapeRBSP(nalu[4:])}

	if _, err := br.readUE(); err != nil { // seq_parameter_set_id
		return SPSInfo{}, err
	}

	chromaFormatIDC := uint(1)
	switch info.ProfileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		var err error
		chromaFormatIDC, err = br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		if chromaFormatIDC == 3 {
			if _, err := br.readBit(); err != nil { // separate_colour_plane_flag
				return SPSInfo{}, err
			}
		}
		if _, err := br.readUE(); err != nil { // bit_depth_luma_minus8
			return SPSInfo{}, err
		}
		if _, err := br.readUE(); err != nil { // bit_depth_chroma_minus8
			return SPSInfo{}, err
		}
		if _, err := br.readBit(); err != nil { // qpprime_y_zero_transform_bypass_flag
			return SPSInfo{}, err
		}
		seqScaling, err := br.readBit()
		if err != nil {
			return SPSInfo{}, err
		}
		if seqScaling == 1 {
			lists := 8
			if chromaFormatIDC == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				present, err := br.readBit()
				if err != nil {
					return SPSInfo{}, err
				}
				if present == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := br.skipScalingList(size); err != nil {
						return SPSInfo{}, err
					}
				}
			}
		}
	}

	if _, err := br.readUE(); err != nil { // log2_max_frame_num_minus4
		return SPSInfo{}, err
	}
	pocType, err := br.readUE()
	if err != nil {
		return SPSInfo{}, err
	}
	switch pocType {
	case 0:
		if _, err := br.readUE(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return SPSInfo{}, err
		}
	case 1:
		if _, err := br.readBit(); err != nil { // delta_pic_order_always_zero_flag
			return SPSInfo{}, err
		}
		if _, err := br.readSE(); err != nil { // offset_for_non_ref_pic
			return SPSInfo{}, err
		}
		if _, err := br.readSE(); err != nil { // offset_for_top_to_bottom_field
			return SPSInfo{}, err
		}
		numRefFrames, err := br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		for i := uint(0); i < numRefFrames; i++ {
			if _, err := br.readSE(); err != nil {
				return SPSInfo{}, err
			}
		}
	}
	if _, err := br.readUE(); err != nil { // max_num_ref_frames
		return SPSInfo{}, err
	}
	if _, err := br.readBit(); err != nil { // gaps_in_frame_num_value_allowed_flag
		return SPSInfo{}, err
	}

	widthInMBs, err := br.readUE()
	if err != nil {
		return SPSInfo{}, err
	}
	heightInMapUnits, err := br.readUE()
	if err != nil {
		return SPSInfo{}, err
	}
	frameMBsOnly, err := br.readBit()
	if err != nil {
		return SPSInfo{}, err
	}
	if frameMBsOnly == 0 {
		if _, err := br.readBit(); err != nil { // mb_adaptive_frame_field_flag
			return SPSInfo{}, err
		}
	}
	if _, err := br.readBit(); err != nil { // direct_8x8_inference_flag
		return SPSInfo{}, err
	}

	width := int(widthInMBs+1) * 16
	height := int(heightInMapUnits+1) * 16
	if frameMBsOnly == 0 {
		height *= 2
	}

	cropping, err := br.readBit()
	if err != nil {
		return SPSInfo{}, err
	}
	if cropping == 1 {
		cropLeft, err := br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		cropRight, err := br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		cropTop, err := br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}
		cropBottom, err := br.readUE()
		if err != nil {
			return SPSInfo{}, err
		}

		cropUnitX, cropUnitY := 1, 1
		switch chromaFormatIDC {
		case 0:
			cropUnitY = 2 - int(frameMBsOnly)
		case 1:
			cropUnitX, cropUnitY = 2, 2*(2-int(frameMBsOnly))
		case 2:
			cropUnitX, cropUnitY = 2, 1*(2-int(frameMBsOnly))
		}
		width -= cropUnitX * int(cropLeft+cropRight)
		height -= cropUnitY * int(cropTop+cropBottom)
	}

	info.Width = width
	info.Height = height
	return info, nil
}

// unescapeRBSP removes emulation-prevention bytes (00 00 03) from NAL data.
func unescapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeros := 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if zeros == 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}

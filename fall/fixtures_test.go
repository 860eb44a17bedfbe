package fall

// Synthetic poses in normalised image coordinates.

func standingJoints() JointSet {
	return JointSet{
		LeftShoulder:  {X: 0.45, Y: 0.30},
		RightShoulder: {X: 0.55, Y: 0.30},
		LeftHip:       {X: 0.47, Y: 0.55},
		RightHip:      {X: 0.53, Y: 0.55},
		LeftAnkle:     {X: 0.47, Y: 0.90},
		RightAnkle:    {X: 0.53, Y: 0.90},
	}
}

func lyingJoints() JointSet {
	return JointSet{
		LeftShoulder:  {X: 0.20, Y: 0.80},
		RightShoulder: {X: 0.20, Y: 0.84},
		LeftHip:       {X: 0.50, Y: 0.82},
		RightHip:      {X: 0.50, Y: 0.86},
		LeftAnkle:     {X: 0.80, Y: 0.85},
		RightAnkle:    {X: 0.80, Y: 0.89},
	}
}

// sequence builds a joint timeline from (pose, count) pairs.
func sequence(parts ...any) []JointSet {
	var out []JointSet
	for i := 0; i+1 < len(parts); i += 2 {
		joints, _ := parts[i].(JointSet)
		n := parts[i+1].(int)
		for j := 0; j < n; j++ {
			out = append(out, joints)
		}
	}
	return out
}
